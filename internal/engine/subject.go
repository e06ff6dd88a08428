package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// errSubjectDeleted is returned to messages that reach a deleted subject.
var errSubjectDeleted = errors.New("subject deleted")

// subject is the single writer for one subject's engine state.
type subject struct {
	id     string
	engine *Engine
	box    *mailbox
	done   chan struct{}
	tasks  *errgroup.Group

	retireOnce sync.Once
	finished   chan struct{} // closed by retire once run and tasks exit

	// Owned by the actor goroutine.
	artifacts map[string]*ir.Artifact
	attempts  *AttemptCounter
	exhausted map[string]bool // RetryExhausted already logged
	cards     []*ir.ActiveCard
	turns     *TurnClock
	lastView  condition.Context
	inflight  int
	waiters   []chan struct{}
	deleted   bool
}

func newSubject(id string, e *Engine) *subject {
	tasks := &errgroup.Group{}
	tasks.SetLimit(e.maxPerSubject)

	return &subject{
		id:        id,
		engine:    e,
		box:       newMailbox(),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		tasks:     tasks,
		artifacts: make(map[string]*ir.Artifact),
		attempts:  NewAttemptCounter(e.maxAttempts),
		exhausted: make(map[string]bool),
		turns:     NewTurnClock(0),
		lastView:  condition.Context{},
	}
}

// run is the actor loop. It exits once the mailbox is closed and drained.
func (s *subject) run() {
	defer close(s.done)

	for {
		if m, ok := s.box.TryDequeue(); ok {
			s.handle(m)
			continue
		}
		if s.box.Closed() && s.box.Len() == 0 {
			return
		}
		<-s.box.Wait()
	}
}

// handle runs one message. A panic is logged and the actor keeps going.
func (s *subject) handle(m message) {
	defer func() {
		if r := recover(); r != nil {
			s.engine.logger.Error("subject message panicked",
				"subject_id", s.id,
				"panic", fmt.Sprint(r))
		}
	}()
	m()
}

// call runs fn on the actor and waits for it. If ctx ends first, fn still
// runs later and its outcome is dropped.
func (s *subject) call(ctx context.Context, fn func()) error {
	done := make(chan error, 1)
	ok := s.box.Enqueue(func() {
		if s.deleted {
			done <- errSubjectDeleted
			return
		}
		defer func() { done <- nil }()
		fn()
	})
	if !ok {
		// A closed mailbox on an open engine belongs to a deleted subject.
		if s.engine.isClosed() {
			return ErrClosed
		}
		return errSubjectDeleted
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addWaiter registers ch to be closed once nothing is in flight.
func (s *subject) addWaiter(ch chan struct{}) {
	if s.inflight == 0 {
		close(ch)
		return
	}
	s.waiters = append(s.waiters, ch)
}

func (s *subject) releaseWaiters() {
	if s.inflight > 0 {
		return
	}
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = nil
}

// stop drains in-flight work, then shuts the actor down.
func (s *subject) stop(ctx context.Context) error {
	idle := make(chan struct{})
	if s.box.Enqueue(func() { s.addWaiter(idle) }) {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.box.Close()

	finished := make(chan struct{})
	go func() {
		_ = s.tasks.Wait()
		<-s.done
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retire watches a closed actor and closes finished once its loop and
// background tasks are done.
func (s *subject) retire() {
	s.retireOnce.Do(func() {
		go func() {
			<-s.done
			_ = s.tasks.Wait()
			close(s.finished)
		}()
	})
}

// delete clears all state. Runs on the actor.
func (s *subject) delete(ctx context.Context) {
	e := s.engine
	s.deleted = true
	s.artifacts = make(map[string]*ir.Artifact)
	s.attempts = NewAttemptCounter(e.maxAttempts)
	s.exhausted = make(map[string]bool)
	s.cards = nil
	s.lastView = condition.Context{}
	s.inflight = 0
	s.releaseWaiters()
	e.tracker.Forget(s.id)

	e.persist(ctx, "delete subject", s.id, func(ctx context.Context) error {
		return e.persister.DeleteSubject(ctx, s.id)
	})
	e.logger.Info("subject deleted", "subject_id", s.id)
}

// view builds the evaluation snapshot for a turn: the caller's context with
// every tracked artifact exposed under artifacts.<id>.
func (s *subject) view(input condition.Context) condition.Context {
	view := input.Clone()

	arts := make(map[string]any, len(s.artifacts))
	switch existing := view["artifacts"].(type) {
	case map[string]any:
		for k, v := range existing {
			arts[k] = v
		}
	case condition.Context:
		for k, v := range existing {
			arts[k] = v
		}
	}
	for id, a := range s.artifacts {
		arts[id] = a.View()
	}
	view["artifacts"] = arts
	return view
}

// artifactState feeds the tracker's idempotence guard.
func (s *subject) artifactState(id string) (ir.ArtifactStatus, bool, bool) {
	a, ok := s.artifacts[id]
	if !ok {
		return "", false, false
	}
	valid := true
	if a.Status == ir.StatusReady {
		if def, ok := s.engine.catalog.Artifact(id); ok {
			valid = len(def.ValidateContent(a.Content)) == 0
		}
	}
	return a.Status, valid, true
}

func (s *subject) generating() []string {
	ids := []string{}
	for id, a := range s.artifacts {
		if a.Status == ir.StatusGenerating {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// snapshot copies the subject's durable state. Runs on the actor.
func (s *subject) snapshot() *ir.SubjectSnapshot {
	snap := &ir.SubjectSnapshot{
		SubjectID:   s.id,
		Turn:        s.turns.Current(),
		Artifacts:   make([]ir.Artifact, 0, len(s.artifacts)),
		Attempts:    s.attempts.Snapshot(),
		Cards:       make([]ir.ActiveCard, 0, len(s.cards)),
		Transitions: s.engine.tracker.State(s.id),
	}
	for _, id := range sortedArtifactIDs(s.artifacts) {
		a := *s.artifacts[id]
		snap.Artifacts = append(snap.Artifacts, a)
	}
	for _, c := range s.cards {
		snap.Cards = append(snap.Cards, c.Clone())
	}
	if snap.Transitions == nil {
		snap.Transitions = map[string]bool{}
	}
	return snap
}

func sortedArtifactIDs(m map[string]*ir.Artifact) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
