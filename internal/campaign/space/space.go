// Package space models the tunable parameters of a template and enumerates the concrete variants a campaign
// verifies.
package space

import (
	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

// Parameter is a named scalar or fixed-arity vector parameter of the template.
type Parameter struct {
	// Name used in configuration documents, e.g. "out_sensors".
	Name string
	// Short key used when encoding variant names, e.g. "os".
	Key string
	// Number of components of a vector parameter. Zero for scalars.
	Arity int
}

func (p Parameter) IsVector() bool {
	return p.Arity > 0
}

// Components is the number of values the parameter takes: one for scalars, Arity for vectors.
func (p Parameter) Components() int {
	if p.IsVector() {
		return p.Arity
	}
	return 1
}

// Schema is the ordered list of a template's parameters. Scalars come first so that, when sweeping, they vary
// slowest and variant names group by them.
type Schema []Parameter

func (s Schema) Validate() error {
	names := make(map[string]bool, len(s))
	keys := make(map[string]bool, len(s))
	seenVector := false
	for _, p := range s {
		if p.Name == "" || p.Key == "" {
			return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "schema", Value: p, Message: "parameters need a name and a key"})
		}
		if names[p.Name] || keys[p.Key] {
			return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "schema", Value: p.Name, Message: "duplicate parameter"})
		}
		for _, r := range p.Key {
			if r < 'a' || r > 'z' {
				return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "schema", Value: p.Key, Message: "keys must be lower case letters"})
			}
		}
		if p.Arity < 0 {
			return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: p.Name, Value: p.Arity, Message: "arity must not be negative"})
		}
		if !p.IsVector() && seenVector {
			return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: p.Name, Value: p.Name, Message: "scalar parameters must precede vector parameters"})
		}
		seenVector = seenVector || p.IsVector()
		names[p.Name] = true
		keys[p.Key] = true
	}
	return nil
}

// Components is the total number of scalar components across every parameter.
func (s Schema) Components() int {
	n := 0
	for _, p := range s {
		n += p.Components()
	}
	return n
}

// Assignment binds every parameter of a schema, by name, to its component values.
type Assignment map[string][]int

// Scalar returns the value of a scalar parameter.
func (a Assignment) Scalar(name string) int {
	values := a[name]
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

// Validate checks that the assignment binds exactly the parameters of the schema with the right arities.
func (a Assignment) Validate(schema Schema) error {
	for _, p := range schema {
		values, ok := a[p.Name]
		if !ok {
			return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: p.Name, Value: nil, Message: "parameter not assigned"})
		}
		if len(values) != p.Components() {
			return errors.WithStack(&campaignerrors.ErrInvalidArgument{
				Name:    p.Name,
				Value:   values,
				Message: "wrong number of components",
			})
		}
	}
	if len(a) != len(schema) {
		for name := range a {
			if !schema.has(name) {
				return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: name, Value: a[name], Message: "unknown parameter"})
			}
		}
	}
	return nil
}

func (s Schema) has(name string) bool {
	for _, p := range s {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Variant is one concrete assignment together with its name.
type Variant struct {
	Name       string
	Assignment Assignment
}

// NewVariant validates the assignment against the schema and names it.
func NewVariant(schema Schema, assignment Assignment) (Variant, error) {
	if err := assignment.Validate(schema); err != nil {
		return Variant{}, err
	}
	return Variant{Name: Name(schema, assignment), Assignment: assignment}, nil
}
