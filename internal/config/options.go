package config

import (
	"encoding/json"
	"unicode/utf8"
)

// Options is the free-form "options" object of a parser or transform.
// Accessors fall back to a default when a key is missing or has another
// type; numbers are accepted as decoded by either JSON or YAML.
type Options map[string]any

// AsOptions accepts a nested object as decoded by either JSON
// (map[string]any) or YAML, which keeps the parent's Options type.
func AsOptions(v any) (Options, bool) {
	switch m := v.(type) {
	case Options:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func lookup[T any](o Options, key string) (T, bool) {
	v, ok := o[key].(T)
	return v, ok
}

func (o Options) String(key, def string) string {
	if s, ok := lookup[string](o, key); ok {
		return s
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	if b, ok := lookup[bool](o, key); ok {
		return b
	}
	return def
}

func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Rune is the first rune of a string option, e.g. a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	s, ok := lookup[string](o, key)
	if !ok || s == "" {
		return def
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// StringMap returns the string-valued entries of an object option. The
// result is never nil.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	m, _ := AsOptions(o[key])
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// StringSlice returns the string elements of an array option, or nil.
func (o Options) StringSlice(key string) []string {
	switch vv := o[key].(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Any returns the raw value, or nil.
func (o Options) Any(key string) any { return o[key] }

// Decode maps the options onto a struct through its json tags.
func (o Options) Decode(dst any) error {
	b, err := json.Marshal(map[string]any(o))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	m := map[string]any{}
	if len(b) > 0 && string(b) != "null" {
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		if m == nil {
			m = map[string]any{}
		}
	}
	*o = m
	return nil
}
