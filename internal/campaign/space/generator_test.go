package space

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

func testSettings() map[string]interface{} {
	return map[string]interface{}{
		"Scenario_1": map[string]interface{}{
			"speed":    1.0,
			"policy":   0.0,
			"sensors":  []interface{}{10.0, 20.0},
			"stations": []interface{}{1.0, 2.0, 3.0},
		},
		"extensive": map[string]interface{}{
			"speed":    map[string]interface{}{"min": 1.0, "max": 2.0},
			"policy":   map[string]interface{}{"min": 0, "max": 2},
			"sensors":  map[string]interface{}{"min": []interface{}{10, 20}, "max": []interface{}{11, 20}},
			"stations": map[string]interface{}{"min": []interface{}{1, 1, 5}, "max": []interface{}{2, 3, 5}},
		},
	}
}

func testConfig() *Config {
	return NewConfig(testSettings())
}

func collect(it *Iterator) []Variant {
	var variants []Variant
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		variants = append(variants, v)
	}
	return variants
}

func TestExtensive_CountMatchesProduct(t *testing.T) {
	g, err := NewGenerator(testSchema, testConfig(), Extensive)
	require.NoError(t, err)

	// speed 2 * policy 3 * sensors (2*1) * stations (2*3*1)
	assert.Equal(t, 72, g.Len())

	variants := collect(g.Iterator())
	require.Len(t, variants, g.Len())
	names := make(map[string]bool)
	for _, v := range variants {
		names[v.Name] = true
		parsed, err := ParseName(testSchema, v.Name)
		require.NoError(t, err)
		assert.Equal(t, v.Assignment, parsed)
	}
	assert.Len(t, names, g.Len())
}

func TestExtensive_Order(t *testing.T) {
	cfg := NewConfig(map[string]interface{}{"extensive": map[string]interface{}{
		"speed":    map[string]interface{}{"min": 1, "max": 2},
		"policy":   map[string]interface{}{"min": 0, "max": 0},
		"sensors":  map[string]interface{}{"min": []interface{}{0, 0}, "max": []interface{}{0, 1}},
		"stations": map[string]interface{}{"min": []interface{}{0, 0, 0}, "max": []interface{}{0, 0, 0}},
	}})
	g, err := NewGenerator(testSchema, cfg, Extensive)
	require.NoError(t, err)

	var names []string
	for _, v := range collect(g.Iterator()) {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{
		"s1-p0-os[0,0]-sp[0,0,0]",
		"s1-p0-os[0,1]-sp[0,0,0]",
		"s2-p0-os[0,0]-sp[0,0,0]",
		"s2-p0-os[0,1]-sp[0,0,0]",
	}, names)
}

func TestIterator_Restartable(t *testing.T) {
	g, err := NewGenerator(testSchema, testConfig(), Extensive)
	require.NoError(t, err)
	assert.Equal(t, collect(g.Iterator()), collect(g.Iterator()))

	it := g.Iterator()
	collect(it)
	_, ok := it.Next()
	assert.False(t, ok)
}

func TestIterator_VariantsDoNotAlias(t *testing.T) {
	g, err := NewGenerator(testSchema, testConfig(), Extensive)
	require.NoError(t, err)
	it := g.Iterator()
	first, _ := it.Next()
	second, _ := it.Next()
	assert.NotEqual(t, first.Assignment, second.Assignment)
	assert.Equal(t, []int{1, 1, 5}, first.Assignment["stations"])
}

func TestNamedScenario(t *testing.T) {
	g, err := NewGenerator(testSchema, testConfig(), "Scenario_1")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	variants := collect(g.Iterator())
	require.Len(t, variants, 1)
	assert.Equal(t, "s1-p0-os[10,20]-sp[1,2,3]", variants[0].Name)
	assert.Equal(t, testAssignment(), variants[0].Assignment)
}

func TestNamedScenario_NotFound(t *testing.T) {
	_, err := NewGenerator(testSchema, testConfig(), "missing")
	var notFound *campaignerrors.ErrNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.Value)

	_, err = NewGenerator(testSchema, NewConfig(nil), Extensive)
	assert.True(t, errors.As(err, &notFound))
}

func TestExtensive_InvalidRanges(t *testing.T) {
	tests := map[string]func(ranges map[string]interface{}){
		"min exceeds max": func(ranges map[string]interface{}) {
			ranges["speed"] = map[string]interface{}{"min": 3, "max": 2}
		},
		"wrong arity": func(ranges map[string]interface{}) {
			ranges["sensors"] = map[string]interface{}{"min": 1, "max": 2}
		},
		"missing parameter": func(ranges map[string]interface{}) {
			delete(ranges, "policy")
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			settings := testSettings()
			mutate(settings["extensive"].(map[string]interface{}))
			_, err := NewGenerator(testSchema, NewConfig(settings), Extensive)
			var invalid *campaignerrors.ErrInvalidArgument
			assert.True(t, errors.As(err, &invalid), "expected ErrInvalidArgument, got %v", err)
		})
	}
}

func TestExtensive_MalformedRange(t *testing.T) {
	settings := testSettings()
	settings["extensive"].(map[string]interface{})["speed"] = map[string]interface{}{"min": 1, "max": 2, "step": 1}
	_, err := NewGenerator(testSchema, NewConfig(settings), Extensive)
	assert.ErrorContains(t, err, "failed to decode extensive ranges")
}

func TestConfig_IgnoresKeysOutsideSchema(t *testing.T) {
	settings := testSettings()
	settings["Scenario_1"].(map[string]interface{})["description"] = "fast belt"
	settings["extensive"].(map[string]interface{})["colour"] = map[string]interface{}{"min": "red"}

	g, err := NewGenerator(testSchema, NewConfig(settings), "scenario_1")
	require.NoError(t, err)
	assert.Equal(t, []Variant{{Name: "s1-p0-os[10,20]-sp[1,2,3]", Assignment: testAssignment()}}, collect(g.Iterator()))

	g, err = NewGenerator(testSchema, NewConfig(settings), Extensive)
	require.NoError(t, err)
	assert.Equal(t, 72, g.Len())
}

func TestConfig_DecodesOnlySelectedScenario(t *testing.T) {
	settings := testSettings()
	settings["scenario_2"] = map[string]interface{}{
		"speed":       "slow",
		"description": "slow belt",
	}
	settings["scenario_3"] = "not a scenario"
	cfg := NewConfig(settings)

	g, err := NewGenerator(testSchema, cfg, "scenario_1")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	g, err = NewGenerator(testSchema, cfg, Extensive)
	require.NoError(t, err)
	assert.Equal(t, 72, g.Len())

	_, err = NewGenerator(testSchema, cfg, "scenario_2")
	assert.ErrorContains(t, err, "failed to decode scenario scenario_2")

	_, err = NewGenerator(testSchema, cfg, "scenario_3")
	var invalid *campaignerrors.ErrInvalidArgument
	assert.True(t, errors.As(err, &invalid), "expected ErrInvalidArgument, got %v", err)
}

func TestConfig_Lookup(t *testing.T) {
	cfg := testConfig()
	assignment, err := cfg.Lookup(testSchema, "SCENARIO_1")
	require.NoError(t, err)
	assert.Equal(t, testAssignment(), assignment)

	ranges, err := cfg.Ranges(testSchema)
	require.NoError(t, err)
	assert.Equal(t, Range{Min: []int{10, 20}, Max: []int{11, 20}}, ranges["sensors"])
	assert.Equal(t, Range{Min: []int{1}, Max: []int{2}}, ranges["speed"])

	var notFound *campaignerrors.ErrNotFound
	_, err = cfg.Lookup(testSchema, Extensive)
	assert.True(t, errors.As(err, &notFound))
}
