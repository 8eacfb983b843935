package report

import (
	"encoding/json"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case JSON, YAML:
		return Format(s), nil
	}
	return "", errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "output", Value: s, Message: "expected json or yaml"})
}

// Encode serialises a report. YAML output keeps the key order of the JSON encoding.
func Encode(report json.Marshaler, format Format) ([]byte, error) {
	data, err := report.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if format != YAML {
		return data, nil
	}
	// JSON is a subset of YAML; decoding into a MapSlice preserves the order at every level.
	var ordered yaml.MapSlice
	if err := yaml.Unmarshal(data, &ordered); err != nil {
		return nil, errors.WithStack(err)
	}
	out, err := yaml.Marshal(ordered)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

var (
	satisfied   = color.New(color.FgGreen, color.Bold)
	unsatisfied = color.New(color.FgRed, color.Bold)
	heading     = color.New(color.Bold)
)

// Banner summarises the outcome of the query phase.
func Banner(failed bool) string {
	if failed {
		return unsatisfied.Sprint("Some properties aren't satisfied!")
	}
	return satisfied.Sprint("All the properties are satisfied!")
}

func Heading(title string) string {
	return heading.Sprint(title) + ":"
}
