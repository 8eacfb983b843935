package pool

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/vericampaign/internal/campaign/document"
	"github.com/G-Research/vericampaign/internal/campaign/engine"
	"github.com/G-Research/vericampaign/internal/campaign/property"
	"github.com/G-Research/vericampaign/internal/campaign/space"
	"github.com/G-Research/vericampaign/internal/common/campaigncontext"
	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

var testSchema = space.Schema{
	{Name: "speed", Key: "s"},
	{Name: "sensors", Key: "os", Arity: 2},
}

type nameDeclarer struct{}

func (nameDeclarer) Declarations(a space.Assignment) []string {
	return []string{fmt.Sprintf("const int SPEED = %d;", a.Scalar("speed"))}
}

// fakeEngine echoes its arguments after a random delay, failing on the configured property of one variant.
type fakeEngine struct {
	failVariant  string
	failProperty string
	maxDelay     time.Duration

	calls      int32
	callsAfter int32
	failed     int32
	mu         sync.Mutex
	documents  map[string]bool
}

func (e *fakeEngine) Verify(_ context.Context, modelPath string, propertyPath string) (*engine.Output, error) {
	atomic.AddInt32(&e.calls, 1)
	if atomic.LoadInt32(&e.failed) > 0 {
		atomic.AddInt32(&e.callsAfter, 1)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Errorf("document %s missing while in use", modelPath)
	}
	e.mu.Lock()
	if e.documents == nil {
		e.documents = make(map[string]bool)
	}
	e.documents[modelPath] = true
	e.mu.Unlock()
	if e.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(e.maxDelay))))
	}
	variant, _ := document.VariantFromPath(modelPath)
	if variant == e.failVariant && filepath.Base(propertyPath) == e.failProperty {
		atomic.StoreInt32(&e.failed, 1)
		return nil, errors.WithStack(&campaignerrors.ErrEngineFailed{ModelPath: modelPath, PropertyPath: propertyPath, ExitCode: 1, Stderr: "boom"})
	}
	return &engine.Output{
		Stdout:  fmt.Sprintf("%s %s", variant, filepath.Base(propertyPath)),
		Elapsed: time.Millisecond,
	}, nil
}

type countingObserver struct {
	completed int
}

func (o *countingObserver) JobCompleted(Result) {
	o.completed++
}

func newSource(t *testing.T, speeds int, properties int) *Source {
	t.Helper()
	dir := t.TempDir()
	cfg := space.NewConfig(map[string]interface{}{"extensive": map[string]interface{}{
		"speed":   map[string]interface{}{"min": 1, "max": speeds},
		"sensors": map[string]interface{}{"min": []interface{}{0, 0}, "max": []interface{}{1, 1}},
	}})
	generator, err := space.NewGenerator(testSchema, cfg, space.Extensive)
	require.NoError(t, err)

	template, err := document.Parse([]byte("<nta>\n<system>\n</system>\n</nta>\n"))
	require.NoError(t, err)

	items := make([]property.Item, properties)
	for i := range items {
		items[i] = property.Item{Kind: property.Query, Index: i, Formula: "A[] true"}
	}
	require.NoError(t, property.WriteFiles(dir, items))
	files, err := property.Discover(dir, property.Query)
	require.NoError(t, err)

	return &Source{
		Variants:   generator,
		Properties: files,
		Template:   template,
		Declarer:   nameDeclarer{},
		ScratchDir: dir,
	}
}

func TestRun_EveryPairOnce(t *testing.T) {
	src := newSource(t, 3, 4)
	fake := &fakeEngine{maxDelay: 2 * time.Millisecond}
	observer := &countingObserver{}
	p := &Pool{Workers: 4, Engine: fake, Observers: []Observer{observer}}

	seen := make(map[string]Result)
	err := p.Run(campaigncontext.Background(), src, func(r Result) error {
		key := fmt.Sprintf("%s/%s", r.VariantName, property.FileName(r.Kind, r.Index))
		_, duplicate := seen[key]
		assert.False(t, duplicate, "result %s emitted twice", key)
		seen[key] = r
		return nil
	})
	require.NoError(t, err)

	total := Total(src.Variants.Len(), len(src.Properties))
	assert.Equal(t, 48, total)
	assert.Len(t, seen, total)
	assert.Equal(t, total, observer.completed)
	assert.Equal(t, int32(total), fake.calls)
	for key, r := range seen {
		assert.Equal(t, fmt.Sprintf("%s %s", r.VariantName, property.FileName(r.Kind, r.Index)), r.Stdout, key)
		assert.Equal(t, time.Millisecond, r.Elapsed)
	}

	// Every variant document is rendered once and removed after its last job.
	assert.Len(t, fake.documents, src.Variants.Len())
	for path := range fake.documents {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "%s was not removed", path)
	}
}

func TestRun_EngineFailureAborts(t *testing.T) {
	src := newSource(t, 5, 3)
	fake := &fakeEngine{failVariant: "s2-os[0,0]", failProperty: "query_01.txt"}
	p := &Pool{Workers: 1, Engine: fake}

	emitted := 0
	err := p.Run(campaigncontext.Background(), src, func(Result) error {
		emitted++
		return nil
	})

	var failed *campaignerrors.ErrEngineFailed
	require.True(t, errors.As(err, &failed), "expected ErrEngineFailed, got %v", err)
	assert.Equal(t, "boom", failed.Stderr)
	assert.Equal(t, int32(0), fake.callsAfter)
	// 4 variants of speed 1, then the first job of the first speed 2 variant succeeds.
	assert.Equal(t, int32(4*3+2), fake.calls)
	assert.Less(t, emitted, Total(src.Variants.Len(), len(src.Properties)))
}

func TestRun_EngineFailureAbortsConcurrent(t *testing.T) {
	src := newSource(t, 20, 3)
	fake := &fakeEngine{failVariant: "s1-os[0,1]", failProperty: "query_00.txt", maxDelay: time.Millisecond}
	p := &Pool{Workers: 4, Engine: fake}

	err := p.Run(campaigncontext.Background(), src, func(Result) error { return nil })

	var failed *campaignerrors.ErrEngineFailed
	require.True(t, errors.As(err, &failed))
	assert.Less(t, int(fake.calls), Total(src.Variants.Len(), len(src.Properties)))
}

func TestRun_EmitErrorAborts(t *testing.T) {
	src := newSource(t, 4, 2)
	p := &Pool{Workers: 2, Engine: &fakeEngine{}}

	emitted := 0
	err := p.Run(campaigncontext.Background(), src, func(Result) error {
		emitted++
		if emitted == 3 {
			return errors.New("cannot decode")
		}
		return nil
	})
	assert.EqualError(t, err, "cannot decode")
	assert.Equal(t, 3, emitted)
}

func TestRun_Cancelled(t *testing.T) {
	src := newSource(t, 4, 2)
	ctx, cancel := campaigncontext.WithCancel(campaigncontext.Background())
	cancel()
	fake := &fakeEngine{}
	p := &Pool{Workers: 2, Engine: fake}

	err := p.Run(ctx, src, func(Result) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), fake.calls)
}

func TestRun_NoProperties(t *testing.T) {
	src := newSource(t, 2, 0)
	fake := &fakeEngine{}
	p := &Pool{Engine: fake}
	require.NoError(t, p.Run(campaigncontext.Background(), src, func(Result) error { return nil }))
	assert.Equal(t, int32(0), fake.calls)
}

func TestIdentify(t *testing.T) {
	result, err := identify(Job{
		ModelPath: document.Path("tmp", "s1-os[0,1]"),
		Property:  property.File{Path: filepath.Join("tmp", "probability_07.txt")},
	})
	require.NoError(t, err)
	assert.Equal(t, Result{VariantName: "s1-os[0,1]", Kind: property.Probability, Index: 7}, result)

	_, err = identify(Job{ModelPath: "tmp/model.xml", Property: property.File{Path: "tmp/query_00.txt"}})
	assert.Error(t, err)
}

func TestTotal(t *testing.T) {
	tests := map[string]struct {
		variants   int
		properties int
		expected   int
	}{
		"product":             {variants: 8, properties: 3, expected: 24},
		"no properties":       {variants: 8, properties: 0, expected: 0},
		"no variants":         {variants: 0, properties: 3, expected: 0},
		"overflow":            {variants: math.MaxInt / 2, properties: 3, expected: math.MaxInt},
		"largest exact total": {variants: math.MaxInt, properties: 1, expected: math.MaxInt},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Total(tc.variants, tc.properties))
		})
	}
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}
