// Package pool executes the cross product of variants and property files through the verification engine.
package pool

import (
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/vericampaign/internal/campaign/document"
	"github.com/G-Research/vericampaign/internal/campaign/engine"
	"github.com/G-Research/vericampaign/internal/campaign/property"
	"github.com/G-Research/vericampaign/internal/campaign/space"
	"github.com/G-Research/vericampaign/internal/common/campaigncontext"
)

// Job is a single engine invocation: one property file checked against one variant document.
type Job struct {
	Variant   string
	ModelPath string
	Property  property.File

	doc *variantDocument
}

// Result is the output of a successful job, tagged with the identity recovered from the paths the engine was
// invoked with.
type Result struct {
	VariantName string
	Kind        property.Kind
	Index       int
	Stdout      string
	Elapsed     time.Duration
}

// Observer is notified of every completed job, from the collecting goroutine.
type Observer interface {
	JobCompleted(Result)
}

// Source is everything the dispatcher needs to materialise jobs.
type Source struct {
	Variants   *space.Generator
	Properties []property.File
	Template   *document.Template
	Declarer   document.Declarer
	// Directory variant documents are written to.
	ScratchDir string
}

// Total is the number of jobs a run over the given number of variants and properties executes, capped at
// math.MaxInt.
func Total(variants int, properties int) int {
	if variants <= 0 || properties <= 0 {
		return 0
	}
	if variants > math.MaxInt/properties {
		return math.MaxInt
	}
	return variants * properties
}

// DefaultWorkers leaves one processing unit free.
func DefaultWorkers() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

type Pool struct {
	Workers   int
	Engine    engine.Engine
	Observers []Observer
}

// variantDocument is deleted once every job referencing it has completed.
type variantDocument struct {
	path      string
	remaining int32
}

func (d *variantDocument) release() error {
	if atomic.AddInt32(&d.remaining, -1) > 0 {
		return nil
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

// Run executes every job of src and passes each result to emit, which is only ever called from one goroutine.
// A dispatcher renders variant documents lazily and feeds a fixed set of workers; the first error from the
// engine, the dispatcher or emit cancels everything else and is returned. Documents of variants whose jobs did
// not all complete are left in the scratch directory.
func (p *Pool) Run(ctx *campaigncontext.Context, src *Source, emit func(Result) error) error {
	if len(src.Properties) == 0 {
		return nil
	}
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	g, ctx := campaigncontext.ErrGroup(ctx)
	jobs := make(chan Job)
	results := make(chan Result)

	g.Go(func() error {
		defer close(jobs)
		return p.dispatch(ctx, src, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return p.work(ctx, jobs, results)
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		for result := range results {
			for _, o := range p.Observers {
				o.JobCompleted(result)
			}
			if err := emit(result); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (p *Pool) dispatch(ctx *campaigncontext.Context, src *Source, jobs chan<- Job) error {
	it := src.Variants.Iterator()
	for variant, ok := it.Next(); ok; variant, ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		path, err := src.Template.Instantiate(src.ScratchDir, variant, src.Declarer)
		if err != nil {
			return errors.WithMessagef(err, "failed to instantiate variant %s", variant.Name)
		}
		doc := &variantDocument{path: path, remaining: int32(len(src.Properties))}
		for _, prop := range src.Properties {
			job := Job{Variant: variant.Name, ModelPath: path, Property: prop, doc: doc}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return errors.WithStack(ctx.Err())
			}
		}
	}
	return nil
}

func (p *Pool) work(ctx *campaigncontext.Context, jobs <-chan Job, results chan<- Result) error {
	for {
		var job Job
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			job = j
		}
		// A job may have been received in the same instant the group was cancelled.
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		result, err := p.execute(ctx, job)
		if err != nil {
			return err
		}
		select {
		case results <- result:
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
}

func (p *Pool) execute(ctx *campaigncontext.Context, job Job) (Result, error) {
	log := ctx.Log.WithFields(logrus.Fields{"variant": job.Variant, "property": job.Property.Path})
	result, err := identify(job)
	if err != nil {
		return Result{}, err
	}
	log.Debug("verifying")
	out, err := p.Engine.Verify(ctx, job.ModelPath, job.Property.Path)
	if err != nil {
		return Result{}, err
	}
	log.WithField("elapsed", out.Elapsed).Debug("verified")
	if job.doc != nil {
		if err := job.doc.release(); err != nil {
			return Result{}, err
		}
	}
	result.Stdout = out.Stdout
	result.Elapsed = out.Elapsed
	return result, nil
}

// identify recovers the identity of a job from the paths handed to the engine.
func identify(job Job) (Result, error) {
	variant, ok := document.VariantFromPath(job.ModelPath)
	if !ok {
		return Result{}, errors.Errorf("%s is not a variant document", job.ModelPath)
	}
	kind, index, err := property.ParseFileName(job.Property.Path)
	if err != nil {
		return Result{}, err
	}
	return Result{VariantName: variant, Kind: kind, Index: index}, nil
}
