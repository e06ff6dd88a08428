package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/moments/internal/compiler"
	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/store"
	"github.com/roach88/moments/internal/testutil"
)

// settleTimeout bounds the wait for in-flight generation after each step.
const settleTimeout = 10 * time.Second

// Harness is the scenario execution state.
type Harness struct {
	scenario *Scenario
	engine   *engine.Engine
	store    *store.Store
	clock    *testutil.FakeClock

	// visible is the card id list returned by the last turn.
	visible []string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile the catalog and create a fresh in-memory store
// 2. Script the generator and build the engine
// 3. Execute steps, settling generation after each
// 4. Evaluate assertions against persisted state
func Run(scenario *Scenario) (*Result, error) {
	catalog, err := compiler.LoadFile(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFakeClock()
	eng := engine.New(catalog, scriptGenerator(scenario.Generators),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithPersister(st),
		engine.WithTimeSource(clock),
		engine.WithIDGenerator(engine.NewSequenceGenerator("card")),
	)

	h := &Harness{
		scenario: scenario,
		engine:   eng,
		store:    st,
		clock:    clock,
	}

	ctx := context.Background()
	result := NewResult()
	runErr := h.executeSteps(ctx, result)
	if runErr == nil {
		for _, msg := range h.evaluateAssertions(ctx) {
			result.AddError(msg)
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	closeErr := eng.Close(closeCtx)

	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close engine: %w", closeErr)
	}
	return result, nil
}

func scriptGenerator(scripts map[string][]GeneratorOutcome) *testutil.ScriptedGenerator {
	gen := testutil.NewScriptedGenerator()
	for artifactID, outcomes := range scripts {
		for _, o := range outcomes {
			switch {
			case o.Error != "":
				gen.Script(artifactID, testutil.Fail(o.Error))
			case o.Panic != "":
				gen.Script(artifactID, testutil.Panic(o.Panic))
			default:
				gen.Script(artifactID, testutil.Succeed(o.Content))
			}
		}
	}
	return gen
}

// executeSteps runs every step, waiting for generation after each so the
// trace does not depend on goroutine scheduling.
func (h *Harness) executeSteps(ctx context.Context, result *Result) error {
	subject := h.scenario.Subject
	for i, step := range h.scenario.Steps {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			h.clock.Advance(d)
		}

		event := TraceEvent{Step: i + 1, Kind: step.Kind()}

		switch event.Kind {
		case "turn":
			res, err := h.engine.ProcessTurn(ctx, subject, step.Turn)
			if err != nil {
				return fmt.Errorf("step %d: turn: %w", i, err)
			}
			h.recordTurn(&event, res)
			if step.Expect != nil {
				for _, msg := range checkTurn(i, step.Expect, &event) {
					result.AddError(msg)
				}
			}

		case "dismiss":
			cause := ir.DismissUser
			if step.Cause != "" {
				cause = ir.DismissCause(step.Cause)
			}
			event.Target = step.Dismiss
			if err := h.engine.DismissCard(ctx, subject, step.Dismiss, cause); err != nil {
				return fmt.Errorf("step %d: dismiss %s: %w", i, step.Dismiss, err)
			}

		case "reset":
			event.Target = step.Reset
			if err := h.engine.ResetArtifact(ctx, subject, step.Reset); err != nil {
				return fmt.Errorf("step %d: reset %s: %w", i, step.Reset, err)
			}
		}

		if err := h.settle(ctx); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		artifacts, err := h.artifactStates(ctx)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		event.Artifacts = artifacts
		result.Trace = append(result.Trace, event)
	}
	return nil
}

func (h *Harness) recordTurn(event *TraceEvent, res *ir.TurnResult) {
	event.Turn = res.Turn
	event.Fired = []string{}
	for _, m := range res.MomentsFired {
		event.Fired = append(event.Fired, m.ID)
	}
	event.Generating = append([]string{}, res.ArtifactsGenerating...)
	event.Created = append([]string{}, res.CardsCreated...)
	event.Dismissed = append([]string{}, res.CardsDismissed...)
	event.Visible = []string{}
	for _, c := range res.CardsVisible {
		event.Visible = append(event.Visible, c.CardID)
	}
	h.visible = event.Visible
}

func (h *Harness) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := h.engine.Wait(ctx, h.scenario.Subject); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("generation did not settle within %s", settleTimeout)
		}
		return err
	}
	return nil
}

// artifactStates reads artifacts back from the store, so traces reflect
// what a restarted engine would see.
func (h *Harness) artifactStates(ctx context.Context) (map[string]ArtifactState, error) {
	artifacts, err := h.store.ReadArtifacts(ctx, h.scenario.Subject)
	if err != nil {
		return nil, fmt.Errorf("read artifacts: %w", err)
	}
	states := make(map[string]ArtifactState, len(artifacts))
	for _, a := range artifacts {
		states[a.ArtifactID] = ArtifactState{
			Status:  string(a.Status),
			Attempt: a.Attempt,
			Error:   a.Error,
		}
	}
	return states, nil
}

func checkTurn(index int, want *TurnExpect, got *TraceEvent) []string {
	var errs []string
	check := func(field string, expected, actual []string) {
		if expected != nil && !slices.Equal(expected, actual) {
			errs = append(errs, fmt.Sprintf("steps[%d].expect.%s: expected %v, got %v", index, field, expected, actual))
		}
	}
	check("fired", want.Fired, got.Fired)
	check("generating", want.Generating, got.Generating)
	check("created", want.Created, got.Created)
	check("dismissed", want.Dismissed, got.Dismissed)
	check("visible", want.Visible, got.Visible)
	return errs
}
