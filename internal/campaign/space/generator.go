package space

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

// Generator yields the variants selected by a scenario: exactly one for a named scenario, or the full Cartesian
// product of the extensive ranges.
type Generator struct {
	schema Schema
	min    []int
	max    []int
	length int
}

// NewGenerator returns a generator for the given scenario of cfg.
func NewGenerator(schema Schema, cfg *Config, scenario string) (*Generator, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if strings.ToLower(scenario) == Extensive {
		ranges, err := cfg.Ranges(schema)
		if err != nil {
			return nil, err
		}
		return newSweep(schema, ranges)
	}
	assignment, err := cfg.Lookup(schema, scenario)
	if err != nil {
		return nil, err
	}
	if err := assignment.Validate(schema); err != nil {
		return nil, errors.WithMessagef(err, "invalid scenario %s", scenario)
	}
	// A single assignment is the degenerate sweep where every range is one value wide.
	ranges := make(map[string]Range, len(assignment))
	for name, values := range assignment {
		ranges[name] = Range{Min: values, Max: values}
	}
	return newSweep(schema, ranges)
}

func newSweep(schema Schema, ranges map[string]Range) (*Generator, error) {
	g := &Generator{
		schema: schema,
		min:    make([]int, 0, schema.Components()),
		max:    make([]int, 0, schema.Components()),
		length: 1,
	}
	for _, p := range schema {
		r, ok := ranges[p.Name]
		if !ok {
			return nil, errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: p.Name, Value: nil, Message: "no range configured"})
		}
		if len(r.Min) != p.Components() || len(r.Max) != p.Components() {
			return nil, errors.WithStack(&campaignerrors.ErrInvalidArgument{
				Name:    p.Name,
				Value:   fmt.Sprintf("min=%v max=%v", r.Min, r.Max),
				Message: fmt.Sprintf("expected %d components", p.Components()),
			})
		}
		for i := range r.Min {
			if r.Min[i] > r.Max[i] {
				return nil, errors.WithStack(&campaignerrors.ErrInvalidArgument{
					Name:    fmt.Sprintf("%s[%d]", p.Name, i),
					Value:   fmt.Sprintf("min=%d max=%d", r.Min[i], r.Max[i]),
					Message: "min exceeds max",
				})
			}
			size := r.Max[i] - r.Min[i] + 1
			if g.length > math.MaxInt/size {
				return nil, errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: p.Name, Value: size, Message: "parameter space too large"})
			}
			g.length *= size
		}
		g.min = append(g.min, r.Min...)
		g.max = append(g.max, r.Max...)
	}
	return g, nil
}

// Len is the number of variants the generator yields, computed without enumerating them.
func (g *Generator) Len() int {
	return g.length
}

// Iterator returns a new iterator positioned before the first variant. Every iterator yields the same sequence.
func (g *Generator) Iterator() *Iterator {
	return &Iterator{g: g}
}

// Iterator walks the variants lazily, odometer style: the last component of the last parameter varies fastest.
type Iterator struct {
	g       *Generator
	current []int
	done    bool
}

// Next returns the next variant, or false once the sequence is exhausted.
func (it *Iterator) Next() (Variant, bool) {
	if it.done {
		return Variant{}, false
	}
	if it.current == nil {
		it.current = append(make([]int, 0, len(it.g.min)), it.g.min...)
		return it.variant(), true
	}
	for i := len(it.current) - 1; i >= 0; i-- {
		if it.current[i] < it.g.max[i] {
			it.current[i]++
			copy(it.current[i+1:], it.g.min[i+1:])
			return it.variant(), true
		}
	}
	it.done = true
	return Variant{}, false
}

func (it *Iterator) variant() Variant {
	assignment := make(Assignment, len(it.g.schema))
	offset := 0
	for _, p := range it.g.schema {
		n := p.Components()
		values := make([]int, n)
		copy(values, it.current[offset:offset+n])
		assignment[p.Name] = values
		offset += n
	}
	return Variant{Name: Name(it.g.schema, assignment), Assignment: assignment}
}
