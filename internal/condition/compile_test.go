package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCompile_TopLevelMustBeMapping tests the configuration error for non-mapping roots.
func TestCompile_TopLevelMustBeMapping(t *testing.T) {
	for _, raw := range []any{"x == 1", []any{map[string]any{"a": true}}, 42, nil} {
		_, err := Compile(raw)
		require.Error(t, err, "raw=%v", raw)
		assert.True(t, IsCompileError(err))
	}
}

// TestCompile_SortedSiblings tests that compilation does not depend on map order.
func TestCompile_SortedSiblings(t *testing.T) {
	expr := MustCompile(map[string]any{"b": true, "a": ">= 1", "c": "!= None"})

	and, ok := expr.(*And)
	require.True(t, ok)
	require.Len(t, and.Children, 3)
	assert.Equal(t, "a", and.Children[0].(*Leaf).Key)
	assert.Equal(t, "b", and.Children[1].(*Leaf).Key)
	assert.Equal(t, "c", and.Children[2].(*Leaf).Key)
}

// TestCompile_OrWithSiblings tests the alternative-path shape.
func TestCompile_OrWithSiblings(t *testing.T) {
	expr := MustCompile(map[string]any{
		"A":  true,
		"OR": []any{map[string]any{"B": true}},
	})

	or, ok := expr.(*Or)
	require.True(t, ok, "siblings plus OR compile to an Or")
	require.Len(t, or.Children, 2)
	assert.IsType(t, &And{}, or.Children[0])
	assert.IsType(t, &Or{}, or.Children[1])
}

// TestCompile_OrOnly tests that a lone OR is not AND-ed with an empty group.
func TestCompile_OrOnly(t *testing.T) {
	expr := MustCompile(map[string]any{
		"OR": []any{map[string]any{"B": true}, map[string]any{"C": true}},
	})

	or, ok := expr.(*Or)
	require.True(t, ok)
	assert.Len(t, or.Children, 2)
	assert.False(t, expr.Eval(Context{}))
}

// TestCompile_Errors tests malformed expressions.
func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		path string
	}{
		{"exists needs bool", map[string]any{"report.exists": "yes"}, "report.exists"},
		{"bare exists", map[string]any{".exists": true}, ".exists"},
		{"nested map outside combinator", map[string]any{"profile": map[string]any{"name": "x"}}, "profile"},
		{"OR scalar", map[string]any{"OR": "a"}, "OR"},
		{"OR empty list", map[string]any{"OR": []any{}}, "OR"},
		{"OR list of scalars", map[string]any{"OR": []any{"a"}}, "OR[0]"},
		{"AND list bad entry", map[string]any{"AND": []any{map[string]any{"x.exists": 1}}}, "AND[0].x.exists"},
		{"ordering on None", map[string]any{"x": ">= None"}, "x"},
		{"missing operand", map[string]any{"x": ">="}, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.raw)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.path, ce.Path)
		})
	}
}

// TestParseComparator tests parsing of comparator strings into typed pairs.
func TestParseComparator(t *testing.T) {
	tests := []struct {
		in      any
		op      Op
		numeric bool
		number  float64
		literal any
	}{
		{">= 3", OpGe, true, 3, nil},
		{"< 0.8", OpLt, true, 0.8, nil},
		{"<=10", OpLe, true, 10, nil},
		{"> -2", OpGt, true, -2, nil},
		{"== 4", OpEq, true, 4, nil},
		{"!= 4", OpNe, true, 4, nil},
		{"!= None", OpPresent, false, 0, nil},
		{"== None", OpAbsent, false, 0, nil},
		{"!= []", OpNotEmpty, false, 0, nil},
		{"== []", OpEmpty, false, 0, nil},
		{"!= 'draft'", OpNe, false, 0, "draft"},
		{"<b>bold</b>", OpEq, false, 0, "<b>bold</b>"},
		{"plain", OpEq, false, 0, "plain"},
		{true, OpEq, false, 0, true},
		{7, OpEq, true, 7, nil},
	}

	for _, tt := range tests {
		c, err := ParseComparator(tt.in)
		require.NoError(t, err, "in=%v", tt.in)
		assert.Equal(t, tt.op, c.Op, "in=%v", tt.in)
		assert.Equal(t, tt.numeric, c.Numeric, "in=%v", tt.in)
		if tt.numeric {
			assert.InDelta(t, tt.number, c.Number, 1e-9, "in=%v", tt.in)
		} else {
			assert.Equal(t, tt.literal, c.Literal, "in=%v", tt.in)
		}
	}
}

// TestExpr_String tests rendering for logs and explanations.
func TestExpr_String(t *testing.T) {
	expr := MustCompile(map[string]any{
		"videos_uploaded": ">= 3",
		"report.exists":   false,
		"OR":              []any{map[string]any{"vip": true}},
	})

	assert.Equal(t, "(report does not exist AND videos_uploaded >= 3) OR (vip == true)", expr.String())
}
