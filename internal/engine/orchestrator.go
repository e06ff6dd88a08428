package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/generate"
	"github.com/roach88/moments/internal/ir"
)

// Launch reasons, for logs.
const (
	reasonFired = "fired"
	reasonRetry = "retry"
)

// startGeneration decides whether to generate the moment's artifact and, if
// so, writes the generating placeholder and launches the background task.
// Runs on the actor. Returns true if a task was launched.
//
// Checks, in order: already generating (skip), required predecessors not
// ready (DependencyUnmet, no state change), attempts exhausted
// (RetryExhausted), no free concurrency slot (skip until a later turn).
func (s *subject) startGeneration(ctx context.Context, m *ir.MomentDefinition, view condition.Context, reason string) bool {
	e := s.engine
	id := m.ArtifactID

	def, ok := e.catalog.Artifact(id)
	if !ok {
		def = &ir.ArtifactDefinition{ID: id}
	}

	prev := s.artifacts[id]
	if prev != nil && prev.Status == ir.StatusGenerating {
		e.logger.Debug("generation already in flight, skipping",
			"subject_id", s.id,
			"artifact_id", id,
			"moment_id", m.ID)
		return false
	}

	if missing := s.missingRequirements(def); len(missing) > 0 {
		err := NewDependencyUnmetError(s.id, id, missing)
		err.MomentID = m.ID
		e.logger.Warn("generation skipped",
			"subject_id", s.id,
			"artifact_id", id,
			"moment_id", m.ID,
			"error", err)
		return false
	}

	if s.attempts.Exhausted(id) {
		s.reportExhausted(id, m.ID)
		return false
	}

	if !e.acquireSlot() {
		e.logger.Debug("generation deferred: global limit reached",
			"subject_id", s.id,
			"artifact_id", id)
		return false
	}

	attempt, err := s.attempts.Acquire(s.id, id)
	if err != nil {
		e.releaseSlot()
		s.reportExhausted(id, m.ID)
		return false
	}

	s.artifacts[id] = &ir.Artifact{
		SubjectID:   s.id,
		ArtifactID:  id,
		Status:      ir.StatusGenerating,
		MomentID:    m.ID,
		Attempt:     attempt,
		UpdatedAt:   e.timestamp(),
		CatalogHash: e.catalog.Hash,
	}

	req := generate.Request{
		SubjectID:  s.id,
		ArtifactID: id,
		MomentID:   m.ID,
		Attempt:    attempt,
		Context:    view.Clone(),
		Params:     def.Params,
		Inputs:     s.inputs(def),
	}

	if !s.tasks.TryGo(func() error {
		s.generate(ctx, req)
		return nil
	}) {
		// Per-subject limit reached: undo and try again on a later turn.
		if prev != nil {
			s.artifacts[id] = prev
		} else {
			delete(s.artifacts, id)
		}
		s.attempts.Release(id)
		e.releaseSlot()
		e.logger.Debug("generation deferred: subject limit reached",
			"subject_id", s.id,
			"artifact_id", id)
		return false
	}
	s.inflight++

	placeholder := *s.artifacts[id]
	e.persist(ctx, "save artifact", s.id, func(ctx context.Context) error {
		return e.persister.SaveArtifact(ctx, placeholder)
	})
	s.saveAttempts(ctx)
	e.dispatcher.NotifyArtifactUpdated(s.id, id, ir.StatusGenerating, nil)

	e.logger.Info("artifact generation started",
		"subject_id", s.id,
		"artifact_id", id,
		"moment_id", m.ID,
		"reason", reason,
		"attempt", attempt,
		"max_attempts", s.attempts.Max())
	return true
}

// missingRequirements lists required predecessors that are not ready.
func (s *subject) missingRequirements(def *ir.ArtifactDefinition) []string {
	var missing []string
	for _, req := range def.Requires {
		if a, ok := s.artifacts[req]; !ok || !a.Exists() {
			missing = append(missing, req)
		}
	}
	return missing
}

// inputs collects content of ready required and optional predecessors.
func (s *subject) inputs(def *ir.ArtifactDefinition) map[string]map[string]any {
	inputs := make(map[string]map[string]any)
	for _, ids := range [][]string{def.Requires, def.Optional} {
		for _, id := range ids {
			if a, ok := s.artifacts[id]; ok && a.Exists() {
				inputs[id] = a.Content
			}
		}
	}
	return inputs
}

// generate runs on a task goroutine. It never touches subject state: the
// result is posted back to the actor.
func (s *subject) generate(ctx context.Context, req generate.Request) {
	e := s.engine

	ctx, span := e.tracer.Start(ctx, "engine.generate", trace.WithAttributes(
		attribute.String("moments.subject_id", req.SubjectID),
		attribute.String("moments.artifact_id", req.ArtifactID),
		attribute.Int("moments.attempt", req.Attempt),
	))
	content, err := e.callGenerator(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
	}
	span.End()

	e.releaseSlot()

	if !s.box.Enqueue(func() { s.completeGeneration(ctx, req, content, err) }) {
		e.logger.Warn("generation result dropped: subject no longer active",
			"subject_id", req.SubjectID,
			"artifact_id", req.ArtifactID,
			"attempt", req.Attempt)
	}
}

// callGenerator calls the generator, converting a panic into an error.
func (e *Engine) callGenerator(ctx context.Context, req generate.Request) (content map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = fmt.Errorf("generator panicked: %v", r)
		}
	}()
	return e.generator.Generate(ctx, req)
}

// completeGeneration applies a task's result exactly once. Runs on the actor.
func (s *subject) completeGeneration(ctx context.Context, req generate.Request, content map[string]any, genErr error) {
	e := s.engine

	if s.deleted {
		e.logger.Warn("generation completed for deleted subject",
			"subject_id", req.SubjectID,
			"artifact_id", req.ArtifactID)
		return
	}

	s.inflight--
	defer s.releaseWaiters()

	cur, ok := s.artifacts[req.ArtifactID]
	if !ok || cur.Status != ir.StatusGenerating || cur.Attempt != req.Attempt {
		e.logger.Warn("stale generation result discarded",
			"subject_id", s.id,
			"artifact_id", req.ArtifactID,
			"attempt", req.Attempt)
		return
	}

	if genErr == nil {
		if def, ok := e.catalog.Artifact(req.ArtifactID); ok {
			if errs := def.ValidateContent(content); len(errs) > 0 {
				genErr = fmt.Errorf("invalid content: %w", errors.Join(errs...))
			}
		}
	}

	next := *cur
	next.UpdatedAt = e.timestamp()

	if genErr != nil {
		failure := NewGenerationFailure(s.id, req.ArtifactID, req.Attempt, genErr)
		failure.MomentID = req.MomentID

		next.Status = ir.StatusError
		next.Content = nil
		next.Error = genErr.Error()

		e.logger.Warn("artifact generation failed",
			"subject_id", s.id,
			"artifact_id", req.ArtifactID,
			"attempt", req.Attempt,
			"max_attempts", s.attempts.Max(),
			"error", failure)
	} else {
		next.Status = ir.StatusReady
		next.Content = content
		next.Error = ""

		e.logger.Info("artifact ready",
			"subject_id", s.id,
			"artifact_id", req.ArtifactID,
			"attempt", req.Attempt)
	}

	s.artifacts[req.ArtifactID] = &next
	if next.Status == ir.StatusError && s.attempts.Exhausted(req.ArtifactID) {
		s.reportExhausted(req.ArtifactID, req.MomentID)
	}

	e.persist(ctx, "save artifact", s.id, func(ctx context.Context) error {
		return e.persister.SaveArtifact(ctx, next)
	})
	e.dispatcher.NotifyArtifactUpdated(s.id, req.ArtifactID, next.Status, next.Content)
}

// reportExhausted logs RetryExhausted once per exhaustion.
func (s *subject) reportExhausted(artifactID, momentID string) {
	e := s.engine
	if s.exhausted[artifactID] {
		e.logger.Debug("generation skipped: retries exhausted",
			"subject_id", s.id,
			"artifact_id", artifactID)
		return
	}
	s.exhausted[artifactID] = true

	err := NewRetryExhaustedError(s.id, artifactID, s.attempts.Current(artifactID), s.attempts.Max())
	err.MomentID = momentID
	e.logger.Error("artifact retries exhausted",
		"subject_id", s.id,
		"artifact_id", artifactID,
		"moment_id", momentID,
		"error", err)
}

func (s *subject) saveAttempts(ctx context.Context) {
	e := s.engine
	attempts := s.attempts.Snapshot()
	e.persist(ctx, "save attempts", s.id, func(ctx context.Context) error {
		return e.persister.SaveAttempts(ctx, s.id, attempts)
	})
}
