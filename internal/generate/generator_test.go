package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/moments/internal/condition"
)

// TestFunc tests the function adapter passes the request through.
func TestFunc(t *testing.T) {
	g := Func(func(_ context.Context, req Request) (map[string]any, error) {
		return map[string]any{"id": req.ArtifactID}, nil
	})

	content, err := g.Generate(context.Background(), Request{ArtifactID: "report"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "report"}, content)
}

// TestWithTimeout_Passthrough tests fast generators are unaffected.
func TestWithTimeout_Passthrough(t *testing.T) {
	defer goleak.VerifyNone(t)

	want := errors.New("boom")
	g := WithTimeout(Func(func(context.Context, Request) (map[string]any, error) {
		return nil, want
	}), time.Second)

	_, err := g.Generate(context.Background(), Request{ArtifactID: "report"})
	assert.ErrorIs(t, err, want)
	assert.False(t, IsTimeout(err))
}

// TestWithTimeout_Expires tests a slow generator is reported as a timeout error.
func TestWithTimeout_Expires(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := WithTimeout(Func(func(ctx context.Context, _ Request) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 10*time.Millisecond)

	_, err := g.Generate(context.Background(), Request{ArtifactID: "report"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "report")
}

// TestWithTimeout_IgnoresContext tests the call returns even when the generator ignores ctx.
func TestWithTimeout_IgnoresContext(t *testing.T) {
	release := make(chan struct{})
	g := WithTimeout(Func(func(context.Context, Request) (map[string]any, error) {
		<-release
		return map[string]any{"late": true}, nil
	}), 10*time.Millisecond)

	_, err := g.Generate(context.Background(), Request{ArtifactID: "slow"})
	assert.True(t, IsTimeout(err))
	close(release)
}

// TestWithTimeout_Zero tests a non-positive timeout disables wrapping.
func TestWithTimeout_Zero(t *testing.T) {
	inner := Func(func(context.Context, Request) (map[string]any, error) { return nil, nil })
	g := WithTimeout(inner, 0)
	_, isWrapped := g.(*timeoutGenerator)
	assert.False(t, isWrapped)
}

// TestTemplate tests per-artifact templates render from the request.
func TestTemplate(t *testing.T) {
	g, err := NewTemplate(map[string]string{
		"report": "{{.Subject}} uploaded {{.Context.videos_uploaded}} videos ({{.Params.tone}})",
	})
	require.NoError(t, err)

	content, err := g.Generate(context.Background(), Request{
		SubjectID:  "family-1",
		ArtifactID: "report",
		Context:    condition.Context{"videos_uploaded": 3},
		Params:     map[string]any{"tone": "warm"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "family-1 uploaded 3 videos (warm)"}, content)
}

// TestTemplate_Errors tests parse, lookup and missing-key failures.
func TestTemplate_Errors(t *testing.T) {
	_, err := NewTemplate(map[string]string{"bad": "{{.Context"})
	assert.Error(t, err)

	g, err := NewTemplate(map[string]string{"report": "{{.Context.missing}}"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{ArtifactID: "other"})
	assert.ErrorContains(t, err, "no template")

	_, err = g.Generate(context.Background(), Request{ArtifactID: "report", Context: condition.Context{}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, Request{ArtifactID: "report"})
	assert.ErrorIs(t, err, context.Canceled)
}
