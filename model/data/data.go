// Package data provides the structured key-value container used for open
// policy config, approval metadata and execution payloads. Keys are strings
// and values are restricted to a small closed set of kinds: string, number
// (float64), bool and nested Map. Arbitrary decoded input (JSON, YAML) is
// normalized into this shape at the boundary; unsupported kinds are dropped.
package data

import (
	"strings"

	"github.com/viant/toolbox"
)

// Map holds string-keyed values of the closed kinds string, float64, bool
// and Map. Use Coerce to build one from untyped input.
type Map map[string]interface{}

// Coerce converts arbitrary input into a Map. Non-map input, including nil,
// coerces to an empty Map. Nested maps are coerced recursively, non-string
// keys are stringified, values of unsupported kinds are dropped.
func Coerce(value interface{}) Map {
	ret := Map{}
	switch actual := value.(type) {
	case Map:
		for k, v := range actual {
			if coerced, ok := coerceValue(v); ok {
				ret[k] = coerced
			}
		}
	case map[string]interface{}:
		for k, v := range actual {
			if coerced, ok := coerceValue(v); ok {
				ret[k] = coerced
			}
		}
	case map[interface{}]interface{}: // yaml.v2 style decoding
		for k, v := range actual {
			if coerced, ok := coerceValue(v); ok {
				ret[toolbox.AsString(k)] = coerced
			}
		}
	}
	return ret
}

func coerceValue(value interface{}) (interface{}, bool) {
	switch actual := value.(type) {
	case nil:
		return nil, false
	case string:
		return actual, true
	case bool:
		return actual, true
	case float64:
		return actual, true
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return toolbox.AsFloat(actual), true
	case Map, map[string]interface{}, map[interface{}]interface{}:
		return Coerce(actual), true
	}
	return nil, false
}

// String returns the value under key converted to string, or empty string
// when absent or when the value is a nested map.
func (m Map) String(key string) string {
	if m == nil {
		return ""
	}
	value, ok := m[key]
	if !ok {
		return ""
	}
	switch value.(type) {
	case string, bool, float64:
		return toolbox.AsString(value)
	}
	return ""
}

// Bool returns the value under key interpreted as a permissive flag.
func (m Map) Bool(key string) bool {
	if m == nil {
		return false
	}
	return AsFlag(m[key])
}

// Clone returns a shallow copy of the map; nested maps are copied too.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	ret := make(Map, len(m))
	for k, v := range m {
		if nested, ok := v.(Map); ok {
			ret[k] = nested.Clone()
			continue
		}
		ret[k] = v
	}
	return ret
}

// AsFlag interprets value as a permissive boolean: native bools pass
// through, numeric 1 is true, and the strings "1", "true", "yes", "on" are
// true case-insensitively. Everything else is false.
func AsFlag(value interface{}) bool {
	switch actual := value.(type) {
	case bool:
		return actual
	case string:
		switch strings.ToLower(strings.TrimSpace(actual)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return toolbox.AsFloat(actual) == 1
	}
	return false
}
