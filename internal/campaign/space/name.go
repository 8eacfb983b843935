package space

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Name encodes an assignment as a human-readable, path-safe variant name, parameters in schema order joined by
// "-": scalars as <key><value>, vectors as <key>[v1,v2,...]. For example s1-d3-p0-os[10,20]-sp[1,2,3].
//
// The encoding is injective for a given schema and ParseName inverts it. Negative values keep their sign; the
// parser is positional, so the sign is never confused with a separator.
func Name(schema Schema, assignment Assignment) string {
	var sb strings.Builder
	for i, p := range schema {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(p.Key)
		values := assignment[p.Name]
		if !p.IsVector() {
			if len(values) > 0 {
				sb.WriteString(strconv.Itoa(values[0]))
			}
			continue
		}
		sb.WriteByte('[')
		for j, v := range values {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(v))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// ParseName recovers the assignment encoded by Name.
func ParseName(schema Schema, name string) (Assignment, error) {
	p := nameParser{input: name}
	assignment := make(Assignment, len(schema))
	for i, param := range schema {
		if i > 0 && !p.consume("-") {
			return nil, p.errorf("expected '-' before %s", param.Key)
		}
		if !p.consume(param.Key) {
			return nil, p.errorf("expected key %q", param.Key)
		}
		if !param.IsVector() {
			v, err := p.integer()
			if err != nil {
				return nil, err
			}
			assignment[param.Name] = []int{v}
			continue
		}
		if !p.consume("[") {
			return nil, p.errorf("expected '[' after %s", param.Key)
		}
		values := make([]int, 0, param.Arity)
		for j := 0; j < param.Arity; j++ {
			if j > 0 && !p.consume(",") {
				return nil, p.errorf("expected ',' in %s", param.Key)
			}
			v, err := p.integer()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		if !p.consume("]") {
			return nil, p.errorf("expected ']' closing %s", param.Key)
		}
		assignment[param.Name] = values
	}
	if p.pos != len(p.input) {
		return nil, p.errorf("trailing characters")
	}
	return assignment, nil
}

type nameParser struct {
	input string
	pos   int
}

func (p *nameParser) consume(s string) bool {
	if strings.HasPrefix(p.input[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *nameParser) integer() (int, error) {
	start := p.pos
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	v, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		p.pos = start
		return 0, p.errorf("expected an integer")
	}
	return v, nil
}

func (p *nameParser) errorf(format string, args ...interface{}) error {
	return errors.Errorf("invalid variant name %q at offset %d: "+format, append([]interface{}{p.input, p.pos}, args...)...)
}
