// Package interpolate substitutes {{identifier}} tokens with session variables.
//
// Unknown identifiers are left in place verbatim so authors can spot missing
// variables in the bot's replies. Substitution is a single pass: values are
// never re-scanned as templates.
package interpolate

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)

// String replaces every resolvable token in text.
func String(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		name := tokenPattern.FindStringSubmatch(tok)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return tok
	})
}

// Strings interpolates each element into a new slice.
func Strings(in []string, vars map[string]string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = String(s, vars)
	}
	return out
}

// Map interpolates the values of m into a new map. Keys are kept as-is.
func Map(m map[string]string, vars map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = String(v, vars)
	}
	return out
}

// Value walks a decoded JSON value and interpolates every string leaf.
// The input is not modified.
func Value(v any, vars map[string]string) any {
	switch t := v.(type) {
	case string:
		return String(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val, vars)
		}
		return out
	default:
		return v
	}
}

// Tokens returns the distinct identifiers referenced by text, in order.
func Tokens(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
