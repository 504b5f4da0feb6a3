package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Model payloads are untrusted: any key may be missing or carry the wrong
// type. These accessors always return a usable default.

// String returns m[key] as a string, or def.
func String(m map[string]any, key, def string) string {
	switch v := m[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return def
	}
}

// Bool returns m[key] as a bool, accepting "true"/"ja" strings.
func Bool(m map[string]any, key string, def bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "ja", "yes":
			return true
		case "false", "nee", "no":
			return false
		}
	}
	return def
}

// Float returns m[key] as a float64.
func Float(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns m[key] as an int.
func Int(m map[string]any, key string, def int) int {
	return int(Float(m, key, float64(def)))
}

// Map returns m[key] as an object, or an empty map.
func Map(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// List returns m[key] as an array, or nil.
func List(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

// Objects returns the object elements of m[key], skipping anything else.
func Objects(m map[string]any, key string) []map[string]any {
	var out []map[string]any
	for _, item := range List(m, key) {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Strings renders the elements of m[key] as text. Objects are rendered as
// compact JSON.
func Strings(m map[string]any, key string) []string {
	var out []string
	for _, item := range List(m, key) {
		if s := Text(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Text renders any payload value as a single line.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Count returns the length of the array at m[key].
func Count(m map[string]any, key string) int {
	return len(List(m, key))
}

// indent renders v as indented JSON for inclusion in a prompt.
func indent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
