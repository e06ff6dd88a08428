package condition

import (
	"fmt"
	"log/slog"
	"strings"
)

// Evaluator evaluates compiled expressions and logs evaluation problems.
// The zero value logs to slog.Default().
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator returns an Evaluator logging to logger (slog.Default() if nil).
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

func (e *Evaluator) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Evaluate reports whether expr holds for ctx. A nil expression never holds.
// Leaves that cannot be evaluated are false and logged.
func (e *Evaluator) Evaluate(expr Expr, ctx Context) bool {
	ok, issues := Check(expr, ctx)
	for _, issue := range issues {
		e.log().Warn("condition evaluation failed, treating as false",
			"expression", expr.String(),
			"error", issue,
		)
	}
	return ok
}

// EvaluateRaw compiles and evaluates an uncompiled expression. Malformed
// expressions fail closed: the result is false and the problem is logged.
func (e *Evaluator) EvaluateRaw(raw any, ctx Context) bool {
	expr, err := Compile(raw)
	if err != nil {
		e.log().Warn("malformed condition expression, failing closed", "error", err)
		return false
	}
	return e.Evaluate(expr, ctx)
}

// Evaluate is Evaluator.Evaluate on the default logger.
func Evaluate(expr Expr, ctx Context) bool {
	return (*Evaluator)(nil).Evaluate(expr, ctx)
}

// EvaluateRaw is Evaluator.EvaluateRaw on the default logger.
func EvaluateRaw(raw any, ctx Context) bool {
	return (*Evaluator)(nil).EvaluateRaw(raw, ctx)
}

// Check evaluates expr and returns the problems found along the way instead
// of logging them.
func Check(expr Expr, ctx Context) (bool, []error) {
	if expr == nil {
		return false, nil
	}
	var st evalState
	ok := expr.eval(ctx, &st)
	return ok, st.issues
}

// Unmet lists the conditions that keep expr from holding, one entry per
// failing leaf. Failing OR clauses are reported as a single "any of" entry.
// It returns nil when expr holds.
func Unmet(expr Expr, ctx Context) []string {
	if expr == nil {
		return []string{"no prerequisite defined"}
	}
	if expr.Eval(ctx) {
		return nil
	}
	return unmet(expr, ctx)
}

func unmet(expr Expr, ctx Context) []string {
	switch x := expr.(type) {
	case *Leaf:
		if x.Eval(ctx) {
			return nil
		}
		return []string{describeLeaf(x, ctx)}
	case *And:
		var out []string
		for _, c := range x.Children {
			out = append(out, unmet(c, ctx)...)
		}
		return out
	case *Or:
		if x.Eval(ctx) {
			return nil
		}
		alts := make([]string, 0, len(x.Children))
		for _, c := range x.Children {
			if parts := unmet(c, ctx); len(parts) > 0 {
				alts = append(alts, strings.Join(parts, " and "))
			}
		}
		if len(alts) == 1 {
			return alts
		}
		return []string{"any of: " + strings.Join(alts, " | ")}
	}
	return nil
}

func describeLeaf(l *Leaf, ctx Context) string {
	value, present := ctx.Lookup(l.Path)
	if l.Exists || !present {
		return l.String()
	}
	return l.String() + " (currently " + formatValue(value) + ")"
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return `"` + s + `"`
	}
	return fmt.Sprintf("%v", v)
}
