package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// Persister receives subject state changes from the actor so they survive a
// restart. Calls happen on the subject's actor goroutine, in order; errors
// are logged and never fail a turn.
type Persister interface {
	SaveArtifact(ctx context.Context, a ir.Artifact) error
	DeleteArtifact(ctx context.Context, subjectID, artifactID string) error
	SaveAttempts(ctx context.Context, subjectID string, attempts map[string]int) error
	SaveCards(ctx context.Context, subjectID string, cards []ir.ActiveCard) error
	SaveTransitions(ctx context.Context, subjectID string, turn int64, state map[string]bool) error
	DeleteSubject(ctx context.Context, subjectID string) error
}

type nopPersister struct{}

func (nopPersister) SaveArtifact(context.Context, ir.Artifact) error { return nil }
func (nopPersister) DeleteArtifact(context.Context, string, string) error { return nil }
func (nopPersister) SaveAttempts(context.Context, string, map[string]int) error { return nil }
func (nopPersister) SaveCards(context.Context, string, []ir.ActiveCard) error { return nil }
func (nopPersister) SaveTransitions(context.Context, string, int64, map[string]bool) error { return nil }
func (nopPersister) DeleteSubject(context.Context, string) error { return nil }

// interruptedMessage is recorded on artifacts that were generating when the
// previous process stopped.
const interruptedMessage = "generation interrupted before completion"

var (
	// ErrCardNotFound is returned by DismissCard for unknown instance ids.
	ErrCardNotFound = errors.New("card not found")
	// ErrGenerationInFlight is returned when an operation needs the subject
	// (or artifact) to be idle.
	ErrGenerationInFlight = errors.New("generation in flight")
)

// Restore hydrates a subject from persisted state. Artifacts persisted as
// generating are restored as error so bounded retry applies to them. The
// subject must not have generation in flight.
func (e *Engine) Restore(ctx context.Context, snap *ir.SubjectSnapshot) error {
	if snap == nil {
		return errors.New("restore: nil snapshot")
	}
	var restoreErr error
	err := e.onSubject(ctx, snap.SubjectID, func(s *subject) { restoreErr = s.restore(snap) })
	if err != nil {
		return err
	}
	return restoreErr
}

func (s *subject) restore(snap *ir.SubjectSnapshot) error {
	e := s.engine
	if s.inflight > 0 {
		return fmt.Errorf("restore %s: %w", s.id, ErrGenerationInFlight)
	}

	s.artifacts = make(map[string]*ir.Artifact, len(snap.Artifacts))
	for _, a := range snap.Artifacts {
		a.SubjectID = s.id
		if a.Status == ir.StatusGenerating {
			a.Status = ir.StatusError
			a.Error = interruptedMessage
			e.logger.Warn("restored interrupted generation as error",
				"subject_id", s.id,
				"artifact_id", a.ArtifactID,
				"attempt", a.Attempt)
		}
		s.artifacts[a.ArtifactID] = &a
	}

	s.attempts = NewAttemptCounter(e.maxAttempts)
	for id, n := range snap.Attempts {
		s.attempts.Set(id, n)
	}
	s.exhausted = make(map[string]bool)

	s.cards = make([]*ir.ActiveCard, 0, len(snap.Cards))
	for _, c := range snap.Cards {
		card := c.Clone()
		if len(card.RawDismissWhen) > 0 {
			expr, err := condition.Compile(card.RawDismissWhen)
			if err != nil {
				e.logger.Warn("restored card has invalid dismiss_when, ignoring rule",
					"subject_id", s.id,
					"instance_id", card.InstanceID,
					"error", err)
			}
			card.DismissWhen = expr
		}
		if card.DynamicFields == nil {
			if m, ok := e.catalog.Moment(card.CreatedByMoment); ok && m.Card != nil {
				card.DynamicFields = m.Card.DynamicFields
			}
		}
		s.cards = append(s.cards, &card)
	}

	s.turns = NewTurnClock(snap.Turn)
	e.tracker.Restore(s.id, snap.Transitions)

	e.logger.Info("subject restored",
		"subject_id", s.id,
		"turn", snap.Turn,
		"artifacts", len(s.artifacts),
		"cards", len(s.cards))
	return nil
}

// Snapshot returns a copy of a subject's durable state. Unknown subjects
// yield an empty snapshot.
func (e *Engine) Snapshot(ctx context.Context, subjectID string) (*ir.SubjectSnapshot, error) {
	s, ok, err := e.lookup(subjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emptySnapshot(subjectID), nil
	}

	var snap *ir.SubjectSnapshot
	err = s.call(ctx, func() { snap = s.snapshot() })
	if errors.Is(err, errSubjectDeleted) {
		return emptySnapshot(subjectID), nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func emptySnapshot(subjectID string) *ir.SubjectSnapshot {
	return &ir.SubjectSnapshot{
		SubjectID:   subjectID,
		Artifacts:   []ir.Artifact{},
		Attempts:    map[string]int{},
		Cards:       []ir.ActiveCard{},
		Transitions: map[string]bool{},
	}
}

// DismissCard dismisses an active event card on behalf of the user or an
// action. Dismissing an already dismissed card is a no-op.
func (e *Engine) DismissCard(ctx context.Context, subjectID, instanceID string, cause ir.DismissCause) error {
	switch cause {
	case ir.DismissUser, ir.DismissAction:
	default:
		return fmt.Errorf("dismiss card: unsupported cause %q", cause)
	}

	s, ok, err := e.lookup(subjectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dismiss card %s: %w", instanceID, ErrCardNotFound)
	}

	var dismissErr error
	err = s.call(ctx, func() { dismissErr = s.dismissByID(context.WithoutCancel(ctx), instanceID, cause) })
	if errors.Is(err, errSubjectDeleted) {
		return fmt.Errorf("dismiss card %s: %w", instanceID, ErrCardNotFound)
	}
	if err != nil {
		return err
	}
	return dismissErr
}

func (s *subject) dismissByID(ctx context.Context, instanceID string, cause ir.DismissCause) error {
	e := s.engine
	for _, c := range s.cards {
		if c.InstanceID != instanceID {
			continue
		}
		if !s.dismiss(c, cause, e.timestamp()) {
			return nil
		}
		s.saveCards(ctx)
		e.dispatcher.NotifyCardsUpdated(s.id, s.visibleCards(s.lastView))
		return nil
	}
	return fmt.Errorf("dismiss card %s: %w", instanceID, ErrCardNotFound)
}

// ResetArtifact is the manual intervention for a failed artifact: it clears
// the attempt counter and, for an error artifact, the artifact itself, so
// the next turn may generate it again.
func (e *Engine) ResetArtifact(ctx context.Context, subjectID, artifactID string) error {
	var resetErr error
	err := e.onSubject(ctx, subjectID, func(s *subject) {
		resetErr = s.resetArtifact(context.WithoutCancel(ctx), artifactID)
	})
	if err != nil {
		return err
	}
	return resetErr
}

func (s *subject) resetArtifact(ctx context.Context, artifactID string) error {
	e := s.engine
	a, ok := s.artifacts[artifactID]
	if ok && a.Status == ir.StatusGenerating {
		return fmt.Errorf("reset %s: %w", artifactID, ErrGenerationInFlight)
	}

	s.attempts.Reset(artifactID)
	delete(s.exhausted, artifactID)
	s.saveAttempts(ctx)

	if ok && a.Status == ir.StatusError {
		delete(s.artifacts, artifactID)
		e.persist(ctx, "delete artifact", s.id, func(ctx context.Context) error {
			return e.persister.DeleteArtifact(ctx, s.id, artifactID)
		})
		e.dispatcher.NotifyArtifactUpdated(s.id, artifactID, ir.StatusPending, nil)
	}

	e.logger.Info("artifact reset",
		"subject_id", s.id,
		"artifact_id", artifactID)
	return nil
}
