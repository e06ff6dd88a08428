package condition

import (
	"fmt"
	"strings"
)

// Reserved combinator keys.
const (
	KeyAnd = "AND"
	KeyOr  = "OR"

	existsSuffix = ".exists"
)

// Expr is a compiled condition. Implementations are Leaf, And and Or.
type Expr interface {
	// Eval reports whether the expression holds for ctx.
	Eval(ctx Context) bool
	// String renders the expression for logs and explanations.
	String() string

	eval(ctx Context, st *evalState) bool
}

// evalState collects problems found while evaluating. A nil state discards them.
type evalState struct {
	issues []error
}

func (st *evalState) record(err error) {
	if st != nil {
		st.issues = append(st.issues, err)
	}
}

// Leaf compares one context path against an expected value.
type Leaf struct {
	// Key is the key exactly as written in configuration.
	Key string
	// Path is the context path, without any ".exists" suffix.
	Path string

	// Exists marks a ".exists" check; Want is the expected existence.
	Exists bool
	Want   bool

	Cmp Comparator
}

func (l *Leaf) Eval(ctx Context) bool { return l.eval(ctx, nil) }

func (l *Leaf) eval(ctx Context, st *evalState) bool {
	value, present := ctx.Lookup(l.Path)
	if l.Exists {
		return existence(value, present) == l.Want
	}
	ok, err := l.Cmp.Match(value, present)
	if err != nil {
		st.record(&EvalError{Key: l.Key, Message: err.Error()})
		return false
	}
	return ok
}

func (l *Leaf) String() string {
	if l.Exists {
		if l.Want {
			return l.Path + " exists"
		}
		return l.Path + " does not exist"
	}
	return l.Path + " " + l.Cmp.String()
}

// existence implements the ".exists" rule: missing is false, a structure
// carrying an explicit flag reports that flag, anything else present is true.
func existence(value any, present bool) bool {
	if !present || value == nil {
		return false
	}
	if e, ok := value.(interface{ Exists() bool }); ok {
		return e.Exists()
	}
	if m, ok := asMap(value); ok {
		if flag, ok := m["exists"]; ok {
			b, isBool := flag.(bool)
			return isBool && b
		}
	}
	return true
}

// And holds when every child holds. An empty And holds.
type And struct {
	Children []Expr
}

func (a *And) Eval(ctx Context) bool { return a.eval(ctx, nil) }

func (a *And) eval(ctx Context, st *evalState) bool {
	for _, c := range a.Children {
		if !c.eval(ctx, st) {
			return false
		}
	}
	return true
}

func (a *And) String() string { return join(a.Children, " AND ") }

// Or holds when any child holds. Children are tried in order and the first
// true child wins. An empty Or does not hold.
type Or struct {
	Children []Expr
}

func (o *Or) Eval(ctx Context) bool { return o.eval(ctx, nil) }

func (o *Or) eval(ctx Context, st *evalState) bool {
	for _, c := range o.Children {
		if c.eval(ctx, st) {
			return true
		}
	}
	return false
}

func (o *Or) String() string { return join(o.Children, " OR ") }

func join(children []Expr, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		s := c.String()
		if _, leaf := c.(*Leaf); !leaf && len(children) > 1 {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

// EvalError describes a leaf that could not be evaluated.
type EvalError struct {
	Key     string
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %q: %s", e.Key, e.Message)
}
