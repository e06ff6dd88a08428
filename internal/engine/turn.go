package engine

import (
	"context"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// processTurn runs one turn. Runs on the actor.
//
// Every moment is evaluated against the same view; nothing done during the
// turn (placeholders, cards) feeds back into this turn's evaluation.
func (s *subject) processTurn(ctx context.Context, input condition.Context) *ir.TurnResult {
	e := s.engine
	turn := s.turns.Next()
	now := e.timestamp()
	view := s.view(input)

	firings := e.tracker.DetectFirings(s.id, e.catalog.Moments, view, s.artifactState)

	e.logger.Debug("turn evaluated",
		"subject_id", s.id,
		"turn", turn,
		"fired", len(firings.Fired),
		"latent", len(firings.StillLatent),
		"guarded", len(firings.Guarded),
		"retry", len(firings.Retry))

	for _, id := range firings.Guarded {
		e.logger.Debug("moment not fired: artifact already ready",
			"subject_id", s.id,
			"moment_id", id)
	}

	for _, id := range firings.Fired {
		e.logger.Info("moment fired", "subject_id", s.id, "moment_id", id, "turn", turn)
		if m, ok := e.catalog.Moment(id); ok && m.ArtifactID != "" {
			s.startGeneration(ctx, m, view, reasonFired)
		}
	}
	for _, id := range firings.Retry {
		if m, ok := e.catalog.Moment(id); ok {
			s.startGeneration(ctx, m, view, reasonRetry)
		}
	}

	// Maintenance covers cards from earlier turns only, so a card is never
	// dismissed by the same snapshot that created it.
	existing := s.cards
	createdBy := s.createCards(firings.Fired, view, now)
	dismissed, updated := s.maintainCards(existing, view, now)

	visible := s.visibleCards(view)
	s.lastView = view

	result := &ir.TurnResult{
		SubjectID:           s.id,
		Turn:                turn,
		ArtifactsGenerating: s.generating(),
		MomentsFired:        []ir.FiredMoment{},
		CardsVisible:        visible,
		CardsCreated:        []string{},
		CardsDismissed:      []string{},
	}
	if dismissed != nil {
		result.CardsDismissed = dismissed
	}

	for _, id := range firings.Fired {
		m, ok := e.catalog.Moment(id)
		if !ok {
			continue
		}
		fm := ir.FiredMoment{
			ID:        m.ID,
			Message:   renderString(m.Message, view),
			UIContext: renderMap(m.UIContext, view),
		}
		if c, ok := createdBy[m.ID]; ok {
			clone := c.Clone()
			fm.Card = &clone
			result.CardsCreated = append(result.CardsCreated, c.InstanceID)
		}
		result.MomentsFired = append(result.MomentsFired, fm)
	}

	if len(createdBy) > 0 || len(dismissed) > 0 || updated {
		s.saveCards(ctx)
		e.dispatcher.NotifyCardsUpdated(s.id, visible)
	}

	transitions := e.tracker.State(s.id)
	e.persist(ctx, "save transitions", s.id, func(ctx context.Context) error {
		return e.persister.SaveTransitions(ctx, s.id, turn, transitions)
	})

	return result
}
