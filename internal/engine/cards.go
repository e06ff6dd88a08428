package engine

import (
	"cmp"
	"context"
	"reflect"
	"slices"
	"time"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// stateInstancePrefix marks the synthetic instance ids of state cards.
const stateInstancePrefix = "state:"

// createCards instantiates one card per fired moment with a card template.
// show_once moments get at most one instance per subject, ever.
// Runs on the actor.
func (s *subject) createCards(fired []string, view condition.Context, now time.Time) map[string]*ir.ActiveCard {
	e := s.engine
	created := make(map[string]*ir.ActiveCard)

	for _, momentID := range fired {
		m, ok := e.catalog.Moment(momentID)
		if !ok || m.Card == nil {
			continue
		}
		tpl := m.Card

		if tpl.ShowOnce && s.hasCardFrom(m.ID) {
			e.logger.Debug("card not created: already shown once",
				"subject_id", s.id,
				"moment_id", m.ID,
				"card_id", tpl.CardID)
			continue
		}

		card := &ir.ActiveCard{
			CardID:                  tpl.CardID,
			InstanceID:              e.ids.Generate(),
			CreatedByMoment:         m.ID,
			Source:                  ir.SourceEvent,
			DisplayMode:             tpl.DisplayMode,
			Priority:                tpl.Priority,
			Content:                 renderMap(tpl.Content, view),
			DynamicFields:           tpl.DynamicFields,
			DismissWhen:             tpl.DismissWhen,
			RawDismissWhen:          tpl.RawDismissWhen,
			AutoDismissAfterSeconds: tpl.AutoDismissAfterSeconds,
			CreatedAt:               now,
		}
		applyDynamicFields(card, view)

		s.cards = append(s.cards, card)
		created[m.ID] = card

		e.logger.Info("card created",
			"subject_id", s.id,
			"moment_id", m.ID,
			"card_id", card.CardID,
			"instance_id", card.InstanceID)
	}
	return created
}

func (s *subject) hasCardFrom(momentID string) bool {
	for _, c := range s.cards {
		if c.CreatedByMoment == momentID {
			return true
		}
	}
	return false
}

// maintainCards re-evaluates dismissal rules and dynamic fields of active
// cards. Returns dismissed instance ids and whether any content changed.
// Runs on the actor.
func (s *subject) maintainCards(cards []*ir.ActiveCard, view condition.Context, now time.Time) ([]string, bool) {
	e := s.engine
	var dismissed []string
	updated := false

	for _, c := range cards {
		if c.Dismissed {
			continue
		}

		switch {
		case c.DismissWhen != nil && e.evaluator.Evaluate(c.DismissWhen, view):
			s.dismiss(c, ir.DismissCondition, now)
			dismissed = append(dismissed, c.InstanceID)
		case autoDismissDue(c, now):
			s.dismiss(c, ir.DismissTimeout, now)
			dismissed = append(dismissed, c.InstanceID)
		default:
			if applyDynamicFields(c, view) {
				updated = true
			}
		}
	}
	return dismissed, updated
}

func autoDismissDue(c *ir.ActiveCard, now time.Time) bool {
	if c.AutoDismissAfterSeconds <= 0 {
		return false
	}
	deadline := c.CreatedAt.Add(time.Duration(c.AutoDismissAfterSeconds) * time.Second)
	return !now.Before(deadline)
}

// dismiss marks a card dismissed. Dismissal is terminal: a dismissed card is
// never modified again. Returns false if it was already dismissed.
func (s *subject) dismiss(c *ir.ActiveCard, cause ir.DismissCause, now time.Time) bool {
	if c.Dismissed {
		return false
	}
	at := now
	c.Dismissed = true
	c.DismissedAt = &at
	c.DismissCause = cause

	s.engine.logger.Info("card dismissed",
		"subject_id", s.id,
		"card_id", c.CardID,
		"instance_id", c.InstanceID,
		"cause", cause)
	return true
}

// applyDynamicFields copies each dynamic field's current context value into
// the card content. Fields whose path does not resolve keep their previous
// value. Returns true if anything changed.
func applyDynamicFields(c *ir.ActiveCard, view condition.Context) bool {
	if c.Dismissed || len(c.DynamicFields) == 0 {
		return false
	}

	fields := make([]string, 0, len(c.DynamicFields))
	for f := range c.DynamicFields {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	changed := false
	for _, field := range fields {
		v, ok := view.Lookup(c.DynamicFields[field])
		if !ok {
			continue
		}
		if c.Content == nil {
			c.Content = make(map[string]any, len(fields))
		}
		if old, had := c.Content[field]; had && reflect.DeepEqual(old, v) {
			continue
		}
		c.Content[field] = v
		changed = true
	}
	return changed
}

// visibleCards merges active event cards with state cards whose condition
// holds, keeps one card per card id (the newest event instance wins over
// everything else), sorts by priority descending and applies the cap.
func (s *subject) visibleCards(view condition.Context) []ir.ActiveCard {
	e := s.engine
	out := []ir.ActiveCard{}
	seen := make(map[string]bool)

	for i := len(s.cards) - 1; i >= 0; i-- {
		c := s.cards[i]
		if c.Dismissed || seen[c.CardID] {
			continue
		}
		seen[c.CardID] = true
		out = append(out, c.Clone())
	}

	for i := range e.catalog.StateCards {
		sc := &e.catalog.StateCards[i]
		if seen[sc.CardID] || sc.When == nil || !e.evaluator.Evaluate(sc.When, view) {
			continue
		}
		seen[sc.CardID] = true

		card := ir.ActiveCard{
			CardID:        sc.CardID,
			InstanceID:    stateInstancePrefix + sc.CardID,
			Source:        ir.SourceState,
			DisplayMode:   sc.DisplayMode,
			Priority:      sc.Priority,
			Content:       renderMap(sc.Content, view),
			DynamicFields: sc.DynamicFields,
		}
		applyDynamicFields(&card, view)
		out = append(out, card)
	}

	slices.SortStableFunc(out, func(a, b ir.ActiveCard) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	if len(out) > e.maxVisibleCards {
		out = out[:e.maxVisibleCards]
	}
	return out
}

func (s *subject) saveCards(ctx context.Context) {
	e := s.engine
	cards := make([]ir.ActiveCard, len(s.cards))
	for i, c := range s.cards {
		cards[i] = c.Clone()
	}
	e.persist(ctx, "save cards", s.id, func(ctx context.Context) error {
		return e.persister.SaveCards(ctx, s.id, cards)
	})
}
