package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Format(t *testing.T) {
	err := NewDependencyUnmetError("s1", "summary", []string{"report", "stats"})
	err.MomentID = "weekly"

	assert.Equal(t,
		"DEPENDENCY_UNMET: required artifacts not ready: report, stats (subject=s1, moment=weekly, artifact=summary)",
		err.Error())

	bare := &RuntimeError{Code: ErrCodeEvaluation, Message: "bad comparator"}
	assert.Equal(t, "EVALUATION_ERROR: bad comparator", bare.Error())
}

func TestRuntimeError_Unwrap(t *testing.T) {
	cause := errors.New("upstream down")
	err := NewGenerationFailure("s1", "report", 2, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, err.Attempt)
	assert.Contains(t, err.Error(), "attempt 2 failed: upstream down")
}

func TestRuntimeError_Predicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"dependency", NewDependencyUnmetError("s", "a", []string{"b"}), IsDependencyUnmet},
		{"generation", NewGenerationFailure("s", "a", 1, errors.New("x")), IsGenerationFailure},
		{"exhausted", NewRetryExhaustedError("s", "a", 3, 3), IsRetryExhausted},
		{"evaluation", &RuntimeError{Code: ErrCodeEvaluation}, IsEvaluationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("wrapped: %w", tt.err)), "matches through wrapping")
		})
	}

	assert.False(t, IsRetryExhausted(NewGenerationFailure("s", "a", 1, nil)))
	assert.False(t, IsGenerationFailure(errors.New("plain")))
	assert.False(t, IsDependencyUnmet(nil))
}
