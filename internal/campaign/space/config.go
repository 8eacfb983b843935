package space

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
	"github.com/G-Research/vericampaign/internal/common/config"
)

// Extensive is the reserved scenario name selecting a sweep over the configured ranges.
const Extensive = "extensive"

// Range is an inclusive [min, max] range per component of a parameter.
type Range struct {
	Min []int `mapstructure:"min"`
	Max []int `mapstructure:"max"`
}

// Config is a campaign configuration document: named scenarios, each a complete assignment, plus an optional
// extensive entry with a range per parameter.
//
//	{
//	  "scenario_1": {"speed": 1, "disks": 4, "policy": 0, "out_sensors": [...], "stations_processing": [...]},
//	  "extensive":  {"speed": {"min": 1, "max": 2}, "out_sensors": {"min": [...], "max": [...]}, ...}
//	}
//
// Entries are decoded only when selected, so a run never fails on a scenario it does not use. Keys that are not
// parameters of the schema, such as a "description", are ignored.
type Config struct {
	entries map[string]interface{}
}

// LoadConfig reads a JSON or YAML configuration document.
func LoadConfig(filePath string) (*Config, error) {
	settings, err := config.ReadDocument(filePath)
	if err != nil {
		return nil, err
	}
	return NewConfig(settings), nil
}

// NewConfig wraps the settings of a configuration document. Scenario names are folded to lower case.
func NewConfig(settings map[string]interface{}) *Config {
	entries := make(map[string]interface{}, len(settings))
	for name, entry := range settings {
		entries[strings.ToLower(name)] = entry
	}
	return &Config{entries: entries}
}

// Lookup decodes the assignment of a named scenario.
func (c *Config) Lookup(schema Schema, scenario string) (Assignment, error) {
	entry, ok := c.entries[strings.ToLower(scenario)]
	if !ok || strings.ToLower(scenario) == Extensive {
		return nil, errors.WithStack(&campaignerrors.ErrNotFound{Type: "scenario", Value: scenario, Message: "configuration not found"})
	}
	assignment := make(Assignment)
	err := decodeParameters(schema, entry, func(name string, value interface{}) error {
		var values []int
		if err := config.Decode(value, &values); err != nil {
			return err
		}
		assignment[name] = values
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to decode scenario %s", scenario)
	}
	return assignment, nil
}

// Ranges decodes the extensive entry.
func (c *Config) Ranges(schema Schema) (map[string]Range, error) {
	entry, ok := c.entries[Extensive]
	if !ok {
		return nil, errors.WithStack(&campaignerrors.ErrNotFound{Type: "scenario", Value: Extensive, Message: "configuration not found"})
	}
	ranges := make(map[string]Range)
	err := decodeParameters(schema, entry, func(name string, value interface{}) error {
		var r Range
		if err := config.Decode(value, &r); err != nil {
			return err
		}
		ranges[name] = r
		return nil
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to decode extensive ranges")
	}
	return ranges, nil
}

// decodeParameters calls decode for every parameter of the schema present in entry.
func decodeParameters(schema Schema, entry interface{}, decode func(name string, value interface{}) error) error {
	fields, ok := entry.(map[string]interface{})
	if !ok {
		return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "entry", Value: entry, Message: "expected a mapping of parameters"})
	}
	for _, p := range schema {
		value, ok := fields[p.Name]
		if !ok {
			continue
		}
		if err := decode(p.Name, value); err != nil {
			return errors.WithMessagef(err, "parameter %s", p.Name)
		}
	}
	return nil
}
