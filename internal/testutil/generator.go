package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/moments/internal/generate"
)

// Outcome is one scripted generator response.
type Outcome struct {
	Content map[string]any
	Err     error
	Panic   any
	// Wait, if set, blocks the call until closed (or ctx ends).
	Wait <-chan struct{}
}

// Succeed returns an outcome producing content.
func Succeed(content map[string]any) Outcome { return Outcome{Content: content} }

// Fail returns an outcome failing with msg.
func Fail(msg string) Outcome { return Outcome{Err: errors.New(msg)} }

// Panic returns an outcome that panics with v.
func Panic(v any) Outcome { return Outcome{Panic: v} }

// Blocked returns o gated on release.
func Blocked(release <-chan struct{}, o Outcome) Outcome {
	o.Wait = release
	return o
}

// ScriptedGenerator replays scripted outcomes per artifact and records every
// request. Artifacts without a script succeed with {"artifact": id}.
//
// Thread-safety: safe for concurrent use.
type ScriptedGenerator struct {
	mu       sync.Mutex
	scripts  map[string][]Outcome
	always   map[string]Outcome
	requests []generate.Request
	started  chan generate.Request
}

// NewScriptedGenerator creates a generator with no scripts.
func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{
		scripts: make(map[string][]Outcome),
		always:  make(map[string]Outcome),
		started: make(chan generate.Request, 64),
	}
}

// Script queues outcomes for an artifact, consumed one per call.
func (g *ScriptedGenerator) Script(artifactID string, outcomes ...Outcome) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[artifactID] = append(g.scripts[artifactID], outcomes...)
	return g
}

// Always sets the outcome used once an artifact's script is exhausted.
func (g *ScriptedGenerator) Always(artifactID string, o Outcome) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.always[artifactID] = o
	return g
}

// Started delivers each request as its call begins.
func (g *ScriptedGenerator) Started() <-chan generate.Request {
	return g.started
}

// Calls returns how many times an artifact was generated.
func (g *ScriptedGenerator) Calls(artifactID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.ArtifactID == artifactID {
			n++
		}
	}
	return n
}

// Requests returns a copy of all recorded requests in call order.
func (g *ScriptedGenerator) Requests() []generate.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generate.Request(nil), g.requests...)
}

// Generate implements generate.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req generate.Request) (map[string]any, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	o, ok := g.next(req.ArtifactID)
	g.mu.Unlock()

	select {
	case g.started <- req:
	default:
	}

	if !ok {
		return map[string]any{"artifact": req.ArtifactID}, nil
	}
	if o.Wait != nil {
		select {
		case <-o.Wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.Panic != nil {
		panic(o.Panic)
	}
	return o.Content, o.Err
}

// next pops the artifact's next outcome. Caller holds g.mu.
func (g *ScriptedGenerator) next(artifactID string) (Outcome, bool) {
	if queue := g.scripts[artifactID]; len(queue) > 0 {
		g.scripts[artifactID] = queue[1:]
		return queue[0], true
	}
	o, ok := g.always[artifactID]
	return o, ok
}
