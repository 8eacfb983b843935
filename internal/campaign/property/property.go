// Package property extracts the formulas embedded in a model template and manages the one-line property files the
// verification engine is invoked with.
package property

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

type Kind int

const (
	Query Kind = iota
	Probability
	Simulation
)

// Kinds lists every kind in the order a campaign runs them.
var Kinds = []Kind{Query, Probability, Simulation}

func (k Kind) String() string {
	switch k {
	case Query:
		return "query"
	case Probability:
		return "probability"
	case Simulation:
		return "simulation"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown property kind %q", s)
}

// Classify returns the kind of a formula from its prefix. Formulas matching none of the prefixes are not
// properties and ok is false.
func Classify(formula string) (kind Kind, ok bool) {
	switch {
	case strings.HasPrefix(formula, "simulate"):
		return Simulation, true
	case strings.HasPrefix(formula, "Pr"):
		return Probability, true
	case strings.HasPrefix(formula, "A"):
		return Query, true
	}
	return 0, false
}

// Item is one formula to be checked.
type Item struct {
	Kind    Kind
	Index   int
	Formula string
}

// FileName is the deterministic name of the property file holding the item, e.g. query_00.txt.
func (i Item) FileName() string {
	return FileName(i.Kind, i.Index)
}

func FileName(kind Kind, index int) string {
	return fmt.Sprintf("%s_%02d.txt", kind, index)
}

// ParseFileName recovers kind and index from a property file path.
func ParseFileName(path string) (Kind, int, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, ".txt")
	sep := strings.LastIndex(stem, "_")
	if stem == base || sep < 0 {
		return 0, 0, errors.Errorf("%s is not a property file name", base)
	}
	kind, err := ParseKind(stem[:sep])
	if err != nil {
		return 0, 0, errors.WithMessagef(err, "%s is not a property file name", base)
	}
	index, err := strconv.Atoi(stem[sep+1:])
	if err != nil || index < 0 {
		return 0, 0, errors.Errorf("%s has an invalid property index", base)
	}
	return kind, index, nil
}

// Set holds the extracted items of every kind, each in document order.
type Set map[Kind][]Item

// Formula returns the text of the item with the given kind and index, or "" if there is none.
func (s Set) Formula(kind Kind, index int) string {
	items := s[kind]
	if index < 0 || index >= len(items) {
		return ""
	}
	return items[index].Formula
}

// Extract collects every non-empty <formula> element of a template document, in document order.
func Extract(r io.Reader) (Set, error) {
	set := make(Set)
	decoder := xml.NewDecoder(r)
	// Model files routinely declare encodings other than UTF-8; the formula text we need is ASCII.
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	depth := 0
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse template")
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "formula" {
				depth++
				if depth == 1 {
					text.Reset()
				}
			}
		case xml.CharData:
			if depth > 0 {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "formula" && depth > 0 {
				depth--
				if depth == 0 {
					set.add(text.String())
				}
			}
		}
	}
	return set, nil
}

func (s Set) add(raw string) {
	if raw == "" {
		return
	}
	kind, ok := Classify(raw)
	if !ok {
		return
	}
	s[kind] = append(s[kind], Item{Kind: kind, Index: len(s[kind]), Formula: Normalize(raw)})
}

// Normalize turns a formula into a single line: line breaks become spaces and tabs are dropped.
func Normalize(formula string) string {
	formula = strings.ReplaceAll(formula, "\r\n", " ")
	formula = strings.ReplaceAll(formula, "\n", " ")
	formula = strings.ReplaceAll(formula, "\r", " ")
	return strings.ReplaceAll(formula, "\t", "")
}

// WriteFiles writes one property file per item into dir.
func WriteFiles(dir string, items []Item) error {
	for _, item := range items {
		path := filepath.Join(dir, item.FileName())
		if err := os.WriteFile(path, []byte(item.Formula+"\n"), 0o644); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// File is a property file discovered on disk.
type File struct {
	Kind  Kind
	Index int
	Path  string
}

// Discover finds the property files of a kind in dir, ordered by index.
func Discover(dir string, kind Kind) ([]File, error) {
	paths, err := zglob.Glob(filepath.Join(dir, kind.String()+"_*.txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	files := make([]File, 0, len(paths))
	for _, path := range paths {
		k, index, err := ParseFileName(path)
		if err != nil {
			return nil, err
		}
		if k != kind {
			continue
		}
		files = append(files, File{Kind: k, Index: index, Path: path})
	}
	slices.SortFunc(files, func(a, b File) bool { return a.Index < b.Index })
	return files, nil
}
