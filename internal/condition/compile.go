package condition

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// CompileError reports a malformed expression found at load time.
type CompileError struct {
	// Path locates the problem inside the expression, e.g. "OR[1].age".
	Path    string
	Message string
}

func (e *CompileError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// IsCompileError reports whether err is (or wraps) a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// Compile builds a typed expression from a decoded configuration value.
// The top level must be a mapping. Keys are visited in sorted order so the
// compiled tree does not depend on map iteration.
func Compile(raw any) (Expr, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, &CompileError{Message: fmt.Sprintf("expression must be a mapping, got %T", raw)}
	}
	return compileGroup(m, "")
}

// MustCompile is like Compile but panics on error. Intended for tests and
// expressions built in code.
func MustCompile(raw any) Expr {
	e, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return e
}

func compileGroup(m map[string]any, at string) (Expr, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var all []Expr
	var alt Expr
	for _, k := range keys {
		v := m[k]
		where := childPath(at, k)
		switch k {
		case KeyAnd:
			e, err := compileAnd(v, where)
			if err != nil {
				return nil, err
			}
			all = append(all, e)
		case KeyOr:
			e, err := compileOr(v, where)
			if err != nil {
				return nil, err
			}
			alt = e
		default:
			leaf, err := compileLeaf(k, v, where)
			if err != nil {
				return nil, err
			}
			all = append(all, leaf)
		}
	}

	if alt == nil {
		return &And{Children: all}, nil
	}
	if len(all) == 0 {
		return alt, nil
	}
	// OR is an alternative satisfying path next to the sibling conditions.
	return &Or{Children: []Expr{&And{Children: all}, alt}}, nil
}

func compileAnd(v any, at string) (Expr, error) {
	if m, ok := asMap(v); ok {
		return compileGroup(m, at)
	}
	groups, err := compileList(v, at, KeyAnd)
	if err != nil {
		return nil, err
	}
	return &And{Children: groups}, nil
}

func compileOr(v any, at string) (Expr, error) {
	if m, ok := asMap(v); ok {
		return compileGroup(m, at)
	}
	groups, err := compileList(v, at, KeyOr)
	if err != nil {
		return nil, err
	}
	return &Or{Children: groups}, nil
}

func compileList(v any, at, key string) ([]Expr, error) {
	list, ok := v.([]any)
	if maps, isMaps := v.([]map[string]any); isMaps {
		list, ok = make([]any, len(maps)), true
		for i, m := range maps {
			list[i] = m
		}
	}
	if !ok {
		return nil, &CompileError{Path: at, Message: fmt.Sprintf("%s must be a mapping or a list of mappings, got %T", key, v)}
	}
	if len(list) == 0 {
		return nil, &CompileError{Path: at, Message: fmt.Sprintf("%s list is empty", key)}
	}
	out := make([]Expr, 0, len(list))
	for i, item := range list {
		where := fmt.Sprintf("%s[%d]", at, i)
		m, ok := asMap(item)
		if !ok {
			return nil, &CompileError{Path: where, Message: fmt.Sprintf("%s entries must be mappings, got %T", key, item)}
		}
		e, err := compileGroup(m, where)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func compileLeaf(key string, v any, at string) (*Leaf, error) {
	if key == "" {
		return nil, &CompileError{Path: at, Message: "empty condition key"}
	}
	if path, ok := strings.CutSuffix(key, existsSuffix); ok {
		want, isBool := v.(bool)
		if !isBool {
			return nil, &CompileError{Path: at, Message: fmt.Sprintf("%s expects true or false, got %T", existsSuffix, v)}
		}
		if path == "" {
			return nil, &CompileError{Path: at, Message: "exists check without a path"}
		}
		return &Leaf{Key: key, Path: path, Exists: true, Want: want}, nil
	}

	if _, isMap := asMap(v); isMap {
		return nil, &CompileError{Path: at, Message: "nested mappings are only allowed under AND or OR"}
	}
	cmp, err := ParseComparator(v)
	if err != nil {
		return nil, &CompileError{Path: at, Message: err.Error()}
	}
	return &Leaf{Key: key, Path: key, Cmp: cmp}, nil
}

func childPath(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}
