package condition

import "strings"

// Context is the snapshot an expression is evaluated against.
// Values are whatever the extraction layer produced: scalars, lists and
// nested mappings.
type Context map[string]any

// Lookup resolves a dotted path through nested mappings.
//
// A key containing literal dots is matched before the path is split, so
// {"a.b": 1} and {"a": {"b": 1}} both resolve "a.b".
func (c Context) Lookup(path string) (any, bool) {
	return lookup(c, path)
}

// Clone returns a shallow copy with room for extra top-level keys.
func (c Context) Clone() Context {
	out := make(Context, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	if v, ok := m[path]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(path, ".")
	for found {
		if next, ok := m[head]; ok {
			if child, ok := asMap(next); ok {
				if v, ok := lookup(child, rest); ok {
					return v, true
				}
			}
		}
		// Keys may themselves contain dots: widen the head and retry.
		var more string
		more, rest, found = strings.Cut(rest, ".")
		head = head + "." + more
	}
	return nil, false
}

// asMap converts the mapping shapes produced by the YAML, CUE and JSON
// decoders into map[string]any.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// ResolvePath is Lookup for callers holding a plain map.
func ResolvePath(m map[string]any, path string) (any, bool) {
	return lookup(m, path)
}
