// Package document instantiates variant documents from a model template.
package document

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/campaign/space"
	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

const (
	StartMarker = "<system>"
	EndMarker   = "</system>"

	filePrefix = "project_"
	fileSuffix = ".xml"
)

// Declarer produces the declarations that replace the system region for one assignment.
type Declarer interface {
	Declarations(space.Assignment) []string
}

// Template is a model document split around its single system region.
type Template struct {
	// Text preceding the line holding StartMarker, byte for byte.
	head string
	// Text following the line holding EndMarker, byte for byte.
	tail string
	// Line terminator used for the rendered region.
	newline string
}

// Load reads and parses the template at filePath.
func Load(filePath string) (*Template, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(&campaignerrors.ErrNotFound{
				Type:    "template file",
				Value:   filePath,
				Message: "please provide a valid path",
			})
		}
		return nil, errors.WithStack(err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid template %s", filePath)
	}
	return t, nil
}

// Parse locates the system region of a template: the first line containing StartMarker through the next line
// containing EndMarker. A template without exactly one such region is rejected.
func Parse(data []byte) (*Template, error) {
	lines := splitLines(data)
	start, end := -1, -1
	for i, line := range lines {
		switch {
		case strings.Contains(line, StartMarker):
			if start >= 0 {
				return nil, errors.WithStack(&campaignerrors.ErrMalformedTemplate{Line: i + 1, Message: "duplicate " + StartMarker})
			}
			start = i
			if strings.Contains(line, EndMarker) {
				return nil, errors.WithStack(&campaignerrors.ErrMalformedTemplate{Line: i + 1, Message: "markers must be on separate lines"})
			}
		case strings.Contains(line, EndMarker):
			if start < 0 {
				return nil, errors.WithStack(&campaignerrors.ErrMalformedTemplate{Line: i + 1, Message: EndMarker + " precedes " + StartMarker})
			}
			if end >= 0 {
				return nil, errors.WithStack(&campaignerrors.ErrMalformedTemplate{Line: i + 1, Message: "duplicate " + EndMarker})
			}
			end = i
		}
	}
	if start < 0 {
		return nil, errors.WithStack(&campaignerrors.ErrMalformedTemplate{Message: "missing " + StartMarker})
	}
	if end < 0 {
		return nil, errors.WithStack(&campaignerrors.ErrMalformedTemplate{Line: start + 1, Message: "unterminated " + StartMarker})
	}
	newline := "\n"
	if strings.HasSuffix(lines[start], "\r\n") {
		newline = "\r\n"
	}
	return &Template{
		head:    strings.Join(lines[:start], ""),
		tail:    strings.Join(lines[end+1:], ""),
		newline: newline,
	}, nil
}

// splitLines splits data after every "\n", keeping terminators so the lines concatenate back to data.
func splitLines(data []byte) []string {
	var lines []string
	reader := bufio.NewReader(bytes.NewReader(data))
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			return lines
		}
	}
}

// Render writes the template with its system region replaced by decls.
func (t *Template) Render(w io.Writer, decls []string) error {
	var sb strings.Builder
	sb.WriteString(t.head)
	sb.WriteString("    " + StartMarker + t.newline)
	for _, decl := range decls {
		sb.WriteString(decl)
		sb.WriteString(t.newline)
	}
	sb.WriteString("    " + EndMarker + t.newline)
	sb.WriteString(t.tail)
	_, err := io.WriteString(w, sb.String())
	return errors.WithStack(err)
}

// Instantiate writes the document of variant v to Path(dir, v.Name) and returns that path.
func (t *Template) Instantiate(dir string, v space.Variant, declarer Declarer) (string, error) {
	path := Path(dir, v.Name)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if err := t.Render(f, declarer.Declarations(v.Assignment)); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

// Path is where the document of the named variant lives in dir.
func Path(dir, variantName string) string {
	return filepath.Join(dir, filePrefix+variantName+fileSuffix)
}

// VariantFromPath recovers the variant name from a path produced by Path.
func VariantFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileSuffix)
	return name, name != ""
}
