package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/campaign/pool"
	"github.com/G-Research/vericampaign/internal/campaign/property"
)

// Correlator decodes pool results and files them into the report of their kind. It is not safe for concurrent
// use; the pool delivers results from a single goroutine.
type Correlator struct {
	properties property.Set

	Queries       *Report[QueryEntry]
	Probabilities *Report[ProbabilityEntry]
	Simulations   *Report[SimulationEntry]
	// Failed is set once any query does not hold.
	Failed bool

	// Directory simulation traces are written to.
	dir       string
	staged    int
	artifacts int
}

// NewCorrelator returns a correlator resolving property indexes against the formulas in properties and writing
// simulation traces to dir.
func NewCorrelator(properties property.Set, dir string) *Correlator {
	return &Correlator{
		properties:    properties,
		dir:           dir,
		Queries:       NewReport[QueryEntry](),
		Probabilities: NewReport[ProbabilityEntry](),
		Simulations:   NewReport[SimulationEntry](),
	}
}

// Add decodes a result and records it. Output that cannot be decoded is an error.
func (c *Correlator) Add(r pool.Result) error {
	formula := c.properties.Formula(r.Kind, r.Index)
	elapsed := FormatElapsed(r.Elapsed)
	var err error
	switch r.Kind {
	case property.Query:
		holds := DecodeQuery(r.Stdout)
		c.Failed = c.Failed || !holds
		err = c.Queries.Set(r.VariantName, r.Index, QueryEntry{Query: formula, Result: holds, Time: elapsed})
	case property.Probability:
		var probability Probability
		probability, err = DecodeProbability(r.Stdout)
		if err == nil {
			err = c.Probabilities.Set(r.VariantName, r.Index, ProbabilityEntry{
				Probability: formula,
				Result:      probability,
				Time:        elapsed,
			})
		}
	case property.Simulation:
		err = c.addSimulation(r, formula, elapsed)
	default:
		err = errors.Errorf("unknown property kind %s", r.Kind)
	}
	if err != nil {
		return errors.WithMessagef(err, "%s of variant %s", property.FileName(r.Kind, r.Index), r.VariantName)
	}
	return nil
}

func (c *Correlator) addSimulation(r pool.Result, formula string, elapsed string) error {
	if _, ok := c.Simulations.Get(r.VariantName, r.Index); ok {
		return errors.Errorf("duplicate result for property %d of variant %s", r.Index, r.VariantName)
	}
	traces, err := DecodeSimulation(r.Stdout)
	if err != nil {
		return err
	}
	entry := SimulationEntry{
		Simulation: formula,
		Result:     DecodeQuery(r.Stdout),
		Series:     []Series{},
		Time:       elapsed,
	}
	// Traces go to disk straight away under a staging name; their final numbering needs every result.
	for _, trace := range traces {
		c.staged++
		name := fmt.Sprintf(".staged_%d.csv", c.staged)
		if err := writeTrace(filepath.Join(c.dir, name), trace); err != nil {
			for _, staged := range entry.staged {
				_ = os.Remove(filepath.Join(c.dir, staged.File))
			}
			return err
		}
		entry.staged = append(entry.staged, Series{Formula: trace.Formula, File: name})
	}
	return c.Simulations.Set(r.VariantName, r.Index, entry)
}

// Finish renames every staged simulation trace to values_NN.csv, numbered from 1 in report order, and points the
// simulation entries at them. It returns the paths written.
func (c *Correlator) Finish() ([]string, error) {
	var written []string
	for _, variant := range c.Simulations.Variants() {
		for _, index := range c.Simulations.Indexes(variant) {
			entry := c.Simulations.entries[variant][index]
			for len(entry.staged) > 0 {
				staged := entry.staged[0]
				c.artifacts++
				name := fmt.Sprintf("values_%02d.csv", c.artifacts)
				path := filepath.Join(c.dir, name)
				if err := os.Rename(filepath.Join(c.dir, staged.File), path); err != nil {
					c.Simulations.entries[variant][index] = entry
					return written, errors.WithStack(err)
				}
				written = append(written, path)
				entry.Series = append(entry.Series, Series{Formula: staged.Formula, File: name})
				entry.staged = entry.staged[1:]
			}
			c.Simulations.entries[variant][index] = entry
		}
	}
	return written, nil
}

// Discard removes the staged traces Finish has not renamed.
func (c *Correlator) Discard() error {
	var result *multierror.Error
	for _, variant := range c.Simulations.Variants() {
		for _, index := range c.Simulations.Indexes(variant) {
			entry := c.Simulations.entries[variant][index]
			for _, staged := range entry.staged {
				if err := os.Remove(filepath.Join(c.dir, staged.File)); err != nil && !os.IsNotExist(err) {
					result = multierror.Append(result, errors.WithStack(err))
				}
			}
			entry.staged = nil
			c.Simulations.entries[variant][index] = entry
		}
	}
	return result.ErrorOrNil()
}

func writeTrace(path string, trace Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	w := csv.NewWriter(f)
	records := make([][]string, 0, len(trace.Points)+1)
	records = append(records, []string{"x", "y"})
	for _, p := range trace.Points {
		records = append(records, []string{strconv.Itoa(p.X), p.Y})
	}
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.WithStack(f.Close())
}
