package engine

import (
	"fmt"
	"regexp"

	"github.com/roach88/moments/internal/condition"
)

// placeholderPattern matches {dotted.path} references.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*)\}`)

// renderString substitutes {dotted.path} placeholders from ctx. Unresolved
// placeholders are left intact so missing data is visible, not blank.
func renderString(s string, ctx condition.Context) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[1 : len(match)-1]
		v, ok := ctx.Lookup(path)
		if !ok || v == nil {
			return match
		}
		return fmt.Sprint(v)
	})
}

// renderValue applies renderString to every string inside v, returning a
// copy. Non-string scalars are returned as is.
func renderValue(v any, ctx condition.Context) any {
	switch t := v.(type) {
	case string:
		return renderString(t, ctx)
	case map[string]any:
		return renderMap(t, ctx)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = renderValue(e, ctx)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = renderString(e, ctx)
		}
		return out
	default:
		return v
	}
}

func renderMap(m map[string]any, ctx condition.Context) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = renderValue(v, ctx)
	}
	return out
}
