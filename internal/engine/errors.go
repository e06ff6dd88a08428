package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("engine closed")

// RuntimeError represents a failure detected while processing a turn or a
// background generation.
//
// Runtime errors never propagate out of ProcessTurn. They end in a logged
// state change (GenerationFailure) or a logged no-op (the others).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	SubjectID  string
	MomentID   string
	ArtifactID string

	// Attempt is the generation attempt involved, if any.
	Attempt int

	// Missing lists unmet predecessor artifacts (DependencyUnmet only).
	Missing []string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeEvaluation indicates a malformed expression at runtime.
	ErrCodeEvaluation RuntimeErrorCode = "EVALUATION_ERROR"

	// ErrCodeDependencyUnmet indicates a required predecessor artifact is
	// not ready. No state changes; retried when the predecessor appears.
	ErrCodeDependencyUnmet RuntimeErrorCode = "DEPENDENCY_UNMET"

	// ErrCodeGenerationFailure indicates the generator failed or returned
	// invalid content. The artifact moves to error and the attempt is spent.
	ErrCodeGenerationFailure RuntimeErrorCode = "GENERATION_FAILURE"

	// ErrCodeRetryExhausted indicates the attempt counter hit its maximum.
	ErrCodeRetryExhausted RuntimeErrorCode = "RETRY_EXHAUSTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var scope []string
	if e.SubjectID != "" {
		scope = append(scope, "subject="+e.SubjectID)
	}
	if e.MomentID != "" {
		scope = append(scope, "moment="+e.MomentID)
	}
	if e.ArtifactID != "" {
		scope = append(scope, "artifact="+e.ArtifactID)
	}
	if len(scope) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(scope, ", "))
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsEvaluationError reports whether err is an evaluation error.
func IsEvaluationError(err error) bool { return hasCode(err, ErrCodeEvaluation) }

// IsDependencyUnmet reports whether err is a dependency-unmet error.
func IsDependencyUnmet(err error) bool { return hasCode(err, ErrCodeDependencyUnmet) }

// IsGenerationFailure reports whether err is a generation failure.
func IsGenerationFailure(err error) bool { return hasCode(err, ErrCodeGenerationFailure) }

// IsRetryExhausted reports whether err is a retry-exhausted error.
func IsRetryExhausted(err error) bool { return hasCode(err, ErrCodeRetryExhausted) }

// NewDependencyUnmetError creates a RuntimeError for missing predecessors.
func NewDependencyUnmetError(subjectID, artifactID string, missing []string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeDependencyUnmet,
		Message:    fmt.Sprintf("required artifacts not ready: %s", strings.Join(missing, ", ")),
		SubjectID:  subjectID,
		ArtifactID: artifactID,
		Missing:    missing,
	}
}

// NewGenerationFailure creates a RuntimeError for a failed attempt.
func NewGenerationFailure(subjectID, artifactID string, attempt int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeGenerationFailure,
		Message:    fmt.Sprintf("attempt %d failed: %v", attempt, cause),
		SubjectID:  subjectID,
		ArtifactID: artifactID,
		Attempt:    attempt,
		Err:        cause,
	}
}

// NewRetryExhaustedError creates a RuntimeError for a spent attempt budget.
func NewRetryExhaustedError(subjectID, artifactID string, attempts, max int) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeRetryExhausted,
		Message:    fmt.Sprintf("%d of %d attempts used", attempts, max),
		SubjectID:  subjectID,
		ArtifactID: artifactID,
		Attempt:    attempts,
	}
}
