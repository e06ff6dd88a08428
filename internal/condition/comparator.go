package condition

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Op is a comparison operator parsed from configuration.
type Op int

const (
	// OpEq requires equality with the operand.
	OpEq Op = iota + 1
	// OpNe requires inequality with the operand.
	OpNe
	// OpLt requires a numeric value below the operand.
	OpLt
	// OpLe requires a numeric value at most the operand.
	OpLe
	// OpGt requires a numeric value above the operand.
	OpGt
	// OpGe requires a numeric value at least the operand.
	OpGe
	// OpPresent is "!= None": the value exists and is not null.
	OpPresent
	// OpAbsent is "== None": the value is missing or null.
	OpAbsent
	// OpNotEmpty is "!= []": the value exists and is not an empty collection.
	OpNotEmpty
	// OpEmpty is "== []": the value is missing, null or an empty collection.
	OpEmpty
)

var opSymbols = map[Op]string{
	OpEq:       "==",
	OpNe:       "!=",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpPresent:  "!= None",
	OpAbsent:   "== None",
	OpNotEmpty: "!= []",
	OpEmpty:    "== []",
}

// String returns the operator as written in configuration.
func (o Op) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// comparatorPattern matches "<op> <operand>" strings such as ">= 3" or "!= None".
var comparatorPattern = regexp.MustCompile(`^\s*(>=|<=|==|!=|>|<)\s*(.*?)\s*$`)

// Comparator is a parsed expected value.
type Comparator struct {
	Op Op

	// Numeric is set when the operand is a number; Number holds it.
	Numeric bool
	Number  float64

	// Literal is the operand for non-numeric equality checks.
	Literal any
}

// ParseComparator interprets an expected value from configuration.
//
// Strings of the form "<op> <operand>" become typed comparisons. Ordering
// operators need a numeric operand; with anything else the string is kept
// as a literal to compare for equality. Every other value is an equality
// check against that literal.
func ParseComparator(expected any) (Comparator, error) {
	s, ok := expected.(string)
	if !ok {
		if n, isNum := toFloat(expected); isNum {
			return Comparator{Op: OpEq, Numeric: true, Number: n}, nil
		}
		return Comparator{Op: OpEq, Literal: expected}, nil
	}

	m := comparatorPattern.FindStringSubmatch(s)
	if m == nil {
		return Comparator{Op: OpEq, Literal: s}, nil
	}
	sym, operand := m[1], m[2]

	switch operand {
	case "None", "null", "nil":
		switch sym {
		case "!=":
			return Comparator{Op: OpPresent}, nil
		case "==":
			return Comparator{Op: OpAbsent}, nil
		}
		return Comparator{}, fmt.Errorf("operator %q cannot be applied to %s", sym, operand)
	case "[]":
		switch sym {
		case "!=":
			return Comparator{Op: OpNotEmpty}, nil
		case "==":
			return Comparator{Op: OpEmpty}, nil
		}
		return Comparator{}, fmt.Errorf("operator %q cannot be applied to []", sym)
	case "":
		return Comparator{}, fmt.Errorf("comparison %q has no operand", s)
	}

	n, err := strconv.ParseFloat(operand, 64)
	isNum := err == nil && !math.IsNaN(n)

	switch sym {
	case "==", "!=":
		op := OpEq
		if sym == "!=" {
			op = OpNe
		}
		if isNum {
			return Comparator{Op: op, Numeric: true, Number: n}, nil
		}
		return Comparator{Op: op, Literal: unquote(operand)}, nil
	default:
		if !isNum {
			return Comparator{Op: OpEq, Literal: s}, nil
		}
		op := map[string]Op{"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe}[sym]
		return Comparator{Op: op, Numeric: true, Number: n}, nil
	}
}

// Match applies the comparator to a looked-up value.
// present reports whether the path resolved at all.
func (c Comparator) Match(value any, present bool) (bool, error) {
	if !present {
		value = nil
	}

	switch c.Op {
	case OpPresent:
		return value != nil, nil
	case OpAbsent:
		return value == nil, nil
	case OpNotEmpty:
		return !isEmpty(value), nil
	case OpEmpty:
		return isEmpty(value), nil
	case OpEq:
		return c.equal(value), nil
	case OpNe:
		return !c.equal(value), nil
	case OpLt, OpLe, OpGt, OpGe:
		if value == nil {
			return false, nil
		}
		n, ok := toFloat(value)
		if !ok {
			return false, fmt.Errorf("cannot compare %T %v with %s %v", value, value, c.Op, c.Number)
		}
		switch c.Op {
		case OpLt:
			return n < c.Number, nil
		case OpLe:
			return n <= c.Number, nil
		case OpGt:
			return n > c.Number, nil
		default:
			return n >= c.Number, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %s", c.Op)
	}
}

// String renders the comparator the way it is written in configuration.
func (c Comparator) String() string {
	switch c.Op {
	case OpPresent, OpAbsent, OpNotEmpty, OpEmpty:
		return c.Op.String()
	}
	operand := fmt.Sprintf("%v", c.Literal)
	if c.Numeric {
		operand = strconv.FormatFloat(c.Number, 'f', -1, 64)
	}
	return c.Op.String() + " " + operand
}

func (c Comparator) equal(value any) bool {
	if c.Numeric {
		n, ok := toFloat(value)
		return ok && n == c.Number
	}
	return looseEqual(value, c.Literal)
}

// looseEqual compares decoded configuration and context values. Numbers
// compare by value regardless of their Go type.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := toFloat(a); ok {
		bn, ok := toFloat(b)
		return ok && an == bn
	}
	return reflect.DeepEqual(a, b)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
