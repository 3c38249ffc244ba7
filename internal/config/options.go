package config

import "encoding/json"

// Options is a free-form knob bag for parser and runtime settings that do
// not deserve a dedicated struct field. Values usually arrive through JSON,
// so the typed accessors tolerate the shapes encoding/json produces
// (float64 numbers, map[string]any objects) and return the caller's default
// when a key is absent or has an unusable shape.
type Options map[string]any

// Bool returns the boolean stored under key, or def.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Int returns the integer stored under key, or def.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return def
		}
		return int(i)
	default:
		return def
	}
}

// String returns the string stored under key, or def.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Rune returns the first rune of the string stored under key, or def.
// Numeric values are accepted as code points.
func (o Options) Rune(key string, def rune) rune {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch r := v.(type) {
	case string:
		for _, c := range r {
			return c
		}
		return def
	case rune:
		return r
	case float64:
		return rune(int(r))
	default:
		return def
	}
}

// StringMap returns the string-to-string mapping stored under key, or nil.
// JSON objects decode as map[string]any; non-string values are dropped.
func (o Options) StringMap(key string) map[string]string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, mv := range m {
			if s, ok := mv.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// Any returns the raw value stored under key, or nil.
func (o Options) Any(key string) any {
	return o[key]
}
