package generate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports a generation call that exceeded its deadline.
type TimeoutError struct {
	ArtifactID string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generate %s: timed out after %s", e.ArtifactID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsTimeout reports whether err is a generation timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every call to g. The wrapped generator receives a
// context with the deadline; if it ignores the context the call still
// returns at the deadline and the late result is discarded.
//
// A non-positive timeout returns g unchanged.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: timeout}
}

type result struct {
	content map[string]any
	err     error
}

func (t *timeoutGenerator) Generate(ctx context.Context, req Request) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Buffered so a late generator never blocks on send.
	done := make(chan result, 1)
	go func() {
		content, err := t.next.Generate(ctx, req)
		done <- result{content: content, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, &TimeoutError{ArtifactID: req.ArtifactID, Timeout: t.timeout}
		}
		return r.content, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{ArtifactID: req.ArtifactID, Timeout: t.timeout}
		}
		return nil, fmt.Errorf("generate %s: %w", req.ArtifactID, ctx.Err())
	}
}
