package generate

import (
	"context"

	"github.com/roach88/moments/internal/condition"
)

// Request is everything a generator needs to produce one artifact.
type Request struct {
	SubjectID  string
	ArtifactID string
	MomentID   string
	Attempt    int

	// Context is a private copy of the turn's evaluation view.
	Context condition.Context
	// Params are the artifact definition's static parameters.
	Params map[string]any
	// Inputs holds the content of required and optional predecessor
	// artifacts that are ready, keyed by artifact id.
	Inputs map[string]map[string]any
}

// Generator produces artifact content. Implementations must be safe to call
// from multiple goroutines.
type Generator interface {
	Generate(ctx context.Context, req Request) (map[string]any, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (map[string]any, error)

// Generate calls f(ctx, req).
func (f Func) Generate(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}
