package condition

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEvaluate_Deterministic tests that evaluation is a pure function of its inputs.
func TestEvaluate_Deterministic(t *testing.T) {
	expr := MustCompile(map[string]any{
		"a":  ">= 2",
		"b":  true,
		"OR": []any{map[string]any{"c": "!= None"}, map[string]any{"d": "< 1"}},
	})
	ctx := Context{"a": 1, "b": true, "d": 0.5}
	before := ctx.Clone()

	first := Evaluate(expr, ctx)
	second := Evaluate(expr, ctx)

	assert.Equal(t, first, second)
	assert.True(t, first)
	assert.Equal(t, before, ctx, "context must not be mutated")
}

// TestEvaluate_OrIsAlternative tests that OR provides an alternative, not an extra requirement.
func TestEvaluate_OrIsAlternative(t *testing.T) {
	expr := MustCompile(map[string]any{
		"A":  true,
		"OR": []any{map[string]any{"B": true}},
	})

	assert.True(t, Evaluate(expr, Context{"B": true}), "B alone satisfies the OR path")
	assert.True(t, Evaluate(expr, Context{"A": true}), "A alone satisfies the sibling path")
	assert.True(t, Evaluate(expr, Context{"A": true, "B": true}))
	assert.False(t, Evaluate(expr, Context{"A": false, "B": false}))
	assert.False(t, Evaluate(expr, Context{}))
}

// TestEvaluate_OrSingleGroup tests an OR holding one mapping evaluated as a whole.
func TestEvaluate_OrSingleGroup(t *testing.T) {
	expr := MustCompile(map[string]any{
		"OR": map[string]any{"x": 1, "y": 2},
	})

	assert.True(t, Evaluate(expr, Context{"x": 1, "y": 2}))
	assert.False(t, Evaluate(expr, Context{"x": 1}), "a single OR group needs all its members")
}

// TestEvaluate_And tests AND as a mapping and as a list of groups.
func TestEvaluate_And(t *testing.T) {
	asMap := MustCompile(map[string]any{"AND": map[string]any{"x": 1, "y": 2}})
	asList := MustCompile(map[string]any{"AND": []any{
		map[string]any{"x": 1},
		map[string]any{"OR": []any{map[string]any{"y": 2}, map[string]any{"z": 3}}},
	}})

	assert.True(t, Evaluate(asMap, Context{"x": 1, "y": 2}))
	assert.False(t, Evaluate(asMap, Context{"x": 1}))
	assert.True(t, Evaluate(asList, Context{"x": 1, "z": 3}))
	assert.False(t, Evaluate(asList, Context{"z": 3}))
}

// TestEvaluate_Exists tests the .exists suffix semantics.
func TestEvaluate_Exists(t *testing.T) {
	present := MustCompile(map[string]any{"p.exists": true})
	absent := MustCompile(map[string]any{"p.exists": false})

	empty := Context{}
	assert.False(t, Evaluate(present, empty))
	assert.True(t, Evaluate(absent, empty))

	withFlag := Context{"p": map[string]any{"exists": false, "status": "generating"}}
	assert.False(t, Evaluate(present, withFlag))
	assert.True(t, Evaluate(absent, withFlag))

	flagged := Context{"p": map[string]any{"exists": true}}
	assert.True(t, Evaluate(present, flagged))

	plain := Context{"p": map[string]any{"title": "x"}}
	assert.True(t, Evaluate(present, plain), "any other present structure exists")

	nested := MustCompile(map[string]any{"artifacts.report.exists": true})
	assert.True(t, Evaluate(nested, Context{"artifacts": map[string]any{"report": map[string]any{"exists": true}}}))
	assert.False(t, Evaluate(nested, Context{"artifacts": map[string]any{}}))

	assert.True(t, Evaluate(present, Context{"p": existsStub(true)}))
	assert.False(t, Evaluate(present, Context{"p": existsStub(false)}))
}

type existsStub bool

func (e existsStub) Exists() bool { return bool(e) }

// TestEvaluate_Comparators tests comparisons against present, missing and mistyped values.
func TestEvaluate_Comparators(t *testing.T) {
	tests := []struct {
		expected any
		ctx      Context
		want     bool
	}{
		{">= 3", Context{"v": 3}, true},
		{">= 3", Context{"v": 2}, false},
		{">= 3", Context{"v": int64(4)}, true},
		{">= 3", Context{}, false},
		{"< 0.8", Context{"v": 0.5}, true},
		{"< 0.8", Context{"v": 0.8}, false},
		{"> 1", Context{"v": "many"}, false},
		{"!= None", Context{"v": ""}, true},
		{"!= None", Context{"v": nil}, false},
		{"!= None", Context{}, false},
		{"== None", Context{}, true},
		{"!= []", Context{"v": []any{"a"}}, true},
		{"!= []", Context{"v": []any{}}, false},
		{"!= []", Context{}, false},
		{"== []", Context{"v": map[string]any{}}, true},
		{"== 2", Context{"v": 2.0}, true},
		{"!= 2", Context{}, true},
		{true, Context{"v": true}, true},
		{true, Context{}, false},
		{false, Context{}, false},
		{nil, Context{}, true},
		{"ready", Context{"v": "ready"}, true},
		{"!= 'ready'", Context{"v": "draft"}, true},
		{3, Context{"v": 3.0}, true},
	}

	for _, tt := range tests {
		expr := MustCompile(map[string]any{"v": tt.expected})
		assert.Equal(t, tt.want, Evaluate(expr, tt.ctx), "expected=%v ctx=%v", tt.expected, tt.ctx)
	}
}

// TestEvaluate_DottedPaths tests nested path resolution.
func TestEvaluate_DottedPaths(t *testing.T) {
	expr := MustCompile(map[string]any{"child.profile.age": ">= 4"})

	assert.True(t, Evaluate(expr, Context{"child": map[string]any{"profile": map[string]any{"age": 5}}}))
	assert.True(t, Evaluate(expr, Context{"child.profile": map[string]any{"age": 4}}))
	assert.False(t, Evaluate(expr, Context{"child": map[string]any{"profile": "n/a"}}))
	assert.False(t, Evaluate(expr, Context{"child": nil}))
}

// TestEvaluate_NilExpression tests that a missing prerequisite never holds.
func TestEvaluate_NilExpression(t *testing.T) {
	assert.False(t, Evaluate(nil, Context{"x": true}))
}

// TestEvaluator_LogsEvaluationErrors tests that mistyped comparisons are logged and fail closed.
func TestEvaluator_LogsEvaluationErrors(t *testing.T) {
	var buf bytes.Buffer
	ev := NewEvaluator(slog.New(slog.NewTextHandler(&buf, nil)))

	ok := ev.Evaluate(MustCompile(map[string]any{"count": ">= 3"}), Context{"count": "three"})

	assert.False(t, ok)
	assert.Contains(t, buf.String(), "condition evaluation failed")
	assert.Contains(t, buf.String(), "count")
}

// TestEvaluator_EvaluateRawFailsClosed tests malformed runtime expressions.
func TestEvaluator_EvaluateRawFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	ev := NewEvaluator(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.False(t, ev.EvaluateRaw([]any{"not", "a", "mapping"}, Context{}))
	assert.Contains(t, buf.String(), "failing closed")

	assert.True(t, ev.EvaluateRaw(map[string]any{"x": true}, Context{"x": true}))
}

// TestCheck tests that Check surfaces issues without logging.
func TestCheck(t *testing.T) {
	ok, issues := Check(MustCompile(map[string]any{"a": "> 1", "b": "< 1"}), Context{"a": "x", "b": 0})

	assert.False(t, ok)
	require.Len(t, issues, 1)
	var ee *EvalError
	require.ErrorAs(t, issues[0], &ee)
	assert.Equal(t, "a", ee.Key)
}

// TestUnmet tests the explanation of missing conditions.
func TestUnmet(t *testing.T) {
	expr := MustCompile(map[string]any{
		"videos_uploaded": ">= 3",
		"consent":         true,
		"report.exists":   true,
	})

	missing := Unmet(expr, Context{"videos_uploaded": 2, "consent": true})
	assert.Equal(t, []string{"report exists", "videos_uploaded >= 3 (currently 2)"}, missing)

	assert.Nil(t, Unmet(expr, Context{
		"videos_uploaded": 3,
		"consent":         true,
		"report":          map[string]any{"exists": true},
	}))

	alt := MustCompile(map[string]any{"A": true, "OR": []any{map[string]any{"B": true}}})
	assert.Equal(t, []string{"any of: A == true | B == true"}, Unmet(alt, Context{}))

	assert.Equal(t, []string{"no prerequisite defined"}, Unmet(nil, Context{}))
}
