package config

import (
	"math"
	"os"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

// CustomHooks are applied whenever a campaign configuration document is decoded.
var CustomHooks = mapstructure.ComposeDecodeHookFunc(
	ScalarToSliceHookFunc(),
	IntegerHookFunc(),
)

// ScalarToSliceHookFunc lets a scalar parameter be written as a bare number wherever a list of components is
// expected, so `"speed": 3` and `"speed": [3]` decode identically.
func ScalarToSliceHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t.Kind() != reflect.Slice || !isNumber(f.Kind()) {
			return data, nil
		}
		return []interface{}{data}, nil
	}
}

// IntegerHookFunc rejects fractional values for integer fields instead of silently truncating them.
func IntegerHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t.Kind() != reflect.Int || (f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32) {
			return data, nil
		}
		v := reflect.ValueOf(data).Float()
		if v != math.Trunc(v) {
			return nil, errors.WithStack(&campaignerrors.ErrInvalidArgument{
				Value:   data,
				Message: "parameter values must be integers",
			})
		}
		return int(v), nil
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ReadDocument reads a JSON or YAML configuration document and returns its settings as nested maps.
// Keys are folded to lower case. "::" is used as the key delimiter so that names containing dots survive intact.
func ReadDocument(filePath string) (map[string]interface{}, error) {
	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(&campaignerrors.ErrNotFound{
				Type:    "configuration file",
				Value:   filePath,
				Message: "please provide a valid path",
			})
		}
		return nil, errors.WithStack(err)
	}
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		err = errors.WithMessagef(err, "failed to read configuration %s", filePath)
		return nil, errors.WithStack(err)
	}
	return v.AllSettings(), nil
}

// Decode decodes input into output, which must be a pointer, applying CustomHooks.
func Decode(input interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  CustomHooks,
		ErrorUnused: true,
		Result:      output,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err := decoder.Decode(input); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
