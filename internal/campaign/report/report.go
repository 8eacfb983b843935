// Package report correlates engine results with the variants and properties they were produced for, and builds
// the query, probability and simulation reports.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Report maps variant name to property index to entry. Both levels are emitted in sorted order: variant names
// lexicographically and indexes numerically.
type Report[T any] struct {
	entries map[string]map[int]T
}

func NewReport[T any]() *Report[T] {
	return &Report[T]{entries: make(map[string]map[int]T)}
}

// Set records the entry for a (variant, index) pair. Each pair can be recorded once.
func (r *Report[T]) Set(variant string, index int, entry T) error {
	byIndex, ok := r.entries[variant]
	if !ok {
		byIndex = make(map[int]T)
		r.entries[variant] = byIndex
	}
	if _, exists := byIndex[index]; exists {
		return errors.Errorf("duplicate result for property %d of variant %s", index, variant)
	}
	byIndex[index] = entry
	return nil
}

func (r *Report[T]) Get(variant string, index int) (T, bool) {
	entry, ok := r.entries[variant][index]
	return entry, ok
}

// Variants returns the variant names in emission order.
func (r *Report[T]) Variants() []string {
	variants := maps.Keys(r.entries)
	slices.Sort(variants)
	return variants
}

// Indexes returns the property indexes recorded for a variant in emission order.
func (r *Report[T]) Indexes(variant string) []int {
	indexes := maps.Keys(r.entries[variant])
	slices.Sort(indexes)
	return indexes
}

// Len is the number of recorded entries.
func (r *Report[T]) Len() int {
	n := 0
	for _, byIndex := range r.entries {
		n += len(byIndex)
	}
	return n
}

// IndexKey renders a property index the way it appears in property file names.
func IndexKey(index int) string {
	return fmt.Sprintf("%02d", index)
}

func (r *Report[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, variant := range r.Variants() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshal(variant)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":{")
		for j, index := range r.Indexes(variant) {
			if j > 0 {
				buf.WriteByte(',')
			}
			value, err := marshal(r.entries[variant][index])
			if err != nil {
				return nil, err
			}
			buf.WriteString(`"` + IndexKey(index) + `":`)
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshal encodes v without escaping the comparison operators formulas are full of.
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FormatElapsed renders an engine run time, e.g. "1.25 seconds".
func FormatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.2f seconds", d.Seconds())
}

type QueryEntry struct {
	Query  string `json:"query"`
	Result bool   `json:"result"`
	Time   string `json:"time"`
}

type ProbabilityEntry struct {
	Probability string      `json:"probability"`
	Result      Probability `json:"result"`
	Time        string      `json:"time"`
}

// Series references the file a simulated trace was written to.
type Series struct {
	Formula string `json:"formula"`
	File    string `json:"file"`
}

type SimulationEntry struct {
	Simulation string   `json:"simulation"`
	Result     bool     `json:"result"`
	Series     []Series `json:"series"`
	Time       string   `json:"time"`

	// Traces written by Add and not yet renamed by Finish.
	staged []Series
}
