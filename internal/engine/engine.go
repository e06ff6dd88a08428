package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/generate"
	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/notify"
)

const (
	// DefaultMaxAttempts bounds generation attempts per (subject, artifact).
	DefaultMaxAttempts = 3
	// DefaultMaxVisibleCards caps the cards returned per turn.
	DefaultMaxVisibleCards = 4
	// DefaultMaxConcurrentGenerations bounds in-flight tasks per subject.
	DefaultMaxConcurrentGenerations = 4
	// DefaultGlobalGenerations bounds in-flight tasks across all subjects.
	DefaultGlobalGenerations = 64
)

const instrumentationName = "github.com/roach88/moments/internal/engine"

// Engine evaluates turns for any number of isolated subjects against one
// immutable catalog.
//
// Thread-safety: every exported method is safe for concurrent use. Calls
// for the same subject are serialized through its actor.
type Engine struct {
	catalog    *ir.Catalog
	generator  generate.Generator
	dispatcher notify.Dispatcher
	persister  Persister
	logger     *slog.Logger
	tracer     trace.Tracer
	now        TimeSource
	ids        IDGenerator

	tracker   *Tracker
	evaluator *condition.Evaluator

	maxAttempts     int
	maxVisibleCards int
	maxPerSubject   int
	globalLimit     int64
	global          *semaphore.Weighted

	mu       sync.Mutex
	subjects map[string]*subject
	retired  []*subject // deleted subjects whose tasks may still run
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDispatcher sets the notification dispatcher. Default: notify.Nop.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithPersister sets the persistence hook. Default: no persistence.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithTimeSource sets the wall clock used for cards and artifacts.
func WithTimeSource(ts TimeSource) Option {
	return func(e *Engine) { e.now = ts }
}

// WithIDGenerator sets the card instance id generator. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Default: the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(instrumentationName) }
}

// WithMaxAttempts sets the generation attempt cap per artifact.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithMaxVisibleCards sets the visible card cap.
func WithMaxVisibleCards(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxVisibleCards = n
		}
	}
}

// WithMaxConcurrentGenerations sets the per-subject in-flight task limit.
func WithMaxConcurrentGenerations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPerSubject = n
		}
	}
}

// WithGlobalGenerationLimit sets the in-flight task limit across subjects.
func WithGlobalGenerationLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.globalLimit = int64(n)
		}
	}
}

// New creates an engine for a compiled catalog.
func New(catalog *ir.Catalog, gen generate.Generator, opts ...Option) *Engine {
	e := &Engine{
		catalog:         catalog,
		generator:       gen,
		dispatcher:      notify.Nop{},
		persister:       nopPersister{},
		logger:          slog.Default(),
		tracer:          otel.Tracer(instrumentationName),
		now:             SystemTime{},
		ids:             UUIDv7Generator{},
		maxAttempts:     DefaultMaxAttempts,
		maxVisibleCards: DefaultMaxVisibleCards,
		maxPerSubject:   DefaultMaxConcurrentGenerations,
		globalLimit:     DefaultGlobalGenerations,
		subjects:        make(map[string]*subject),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.tracker = NewTracker(e.logger)
	e.evaluator = condition.NewEvaluator(e.logger)
	e.global = semaphore.NewWeighted(e.globalLimit)
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *ir.Catalog {
	return e.catalog
}

// subject returns the actor for id, starting it on first use.
func (e *Engine) subject(id string) (*subject, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	s, ok := e.subjects[id]
	if !ok {
		s = newSubject(id, e)
		e.subjects[id] = s
		go s.run()
	}
	return s, nil
}

// lookup returns an existing actor without creating one.
func (e *Engine) lookup(id string) (*subject, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false, ErrClosed
	}
	s, ok := e.subjects[id]
	return s, ok, nil
}

// ProcessTurn evaluates one turn for a subject and returns what it made
// possible. Generation started by the turn continues in the background;
// observe it on later turns, through the dispatcher, or with Wait.
//
// Only cancellation of ctx and use after Close are reported as errors. If
// ctx is cancelled after the turn was queued, the turn still runs.
func (e *Engine) ProcessTurn(ctx context.Context, subjectID string, input condition.Context) (*ir.TurnResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ProcessTurn",
		trace.WithAttributes(attribute.String("moments.subject_id", subjectID)))
	defer span.End()

	// The turn must finish its bookkeeping even if the caller goes away.
	turnCtx := context.WithoutCancel(ctx)

	var result *ir.TurnResult
	err := e.onSubject(ctx, subjectID, func(s *subject) { result = s.processTurn(turnCtx, input) })
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("moments.turn", result.Turn),
		attribute.Int("moments.fired", len(result.MomentsFired)),
		attribute.Int("moments.generating", len(result.ArtifactsGenerating)),
		attribute.Int("moments.cards_visible", len(result.CardsVisible)),
	)
	return result, nil
}

// onSubject runs fn on the subject's actor, starting it if needed. A
// subject deleted between lookup and delivery is replaced by a fresh one.
func (e *Engine) onSubject(ctx context.Context, subjectID string, fn func(*subject)) error {
	for {
		s, err := e.subject(subjectID)
		if err != nil {
			return err
		}
		err = s.call(ctx, func() { fn(s) })
		if errors.Is(err, errSubjectDeleted) {
			continue
		}
		return err
	}
}

// Wait blocks until the subject has no generation in flight and every
// completion has been applied. Unknown subjects return immediately.
func (e *Engine) Wait(ctx context.Context, subjectID string) error {
	s, ok, err := e.lookup(subjectID)
	if err != nil || !ok {
		return err
	}

	idle := make(chan struct{})
	err = s.call(ctx, func() { s.addWaiter(idle) })
	if errors.Is(err, ErrClosed) || errors.Is(err, errSubjectDeleted) {
		// Deleted while we looked it up.
		return nil
	}
	if err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteSubject drops all of a subject's state. Generation still in flight
// completes into a logged no-op.
func (e *Engine) DeleteSubject(ctx context.Context, subjectID string) error {
	s, ok, err := e.lookup(subjectID)
	if err != nil {
		return err
	}
	if !ok {
		e.tracker.Forget(subjectID)
		e.persist(ctx, "delete subject", subjectID, func(ctx context.Context) error {
			return e.persister.DeleteSubject(ctx, subjectID)
		})
		return nil
	}

	err = s.call(ctx, func() { s.delete(context.WithoutCancel(ctx)) })

	e.mu.Lock()
	if e.subjects[subjectID] == s {
		delete(e.subjects, subjectID)
		e.retired = append(pruneStopped(e.retired), s)
	}
	e.mu.Unlock()
	s.box.Close()
	s.retire()

	if errors.Is(err, ErrClosed) || errors.Is(err, errSubjectDeleted) {
		return nil
	}
	return err
}

// pruneStopped drops retired actors whose loop and tasks have exited.
func pruneStopped(retired []*subject) []*subject {
	kept := retired[:0]
	for _, s := range retired {
		select {
		case <-s.finished:
		default:
			kept = append(kept, s)
		}
	}
	return kept
}

// Close waits for in-flight generation to complete, applies the results,
// and stops every subject actor. Other methods return ErrClosed afterwards.
// If ctx ends first, Close may be called again to finish the shutdown.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	subjects := make([]*subject, 0, len(e.subjects)+len(e.retired))
	for _, s := range e.subjects {
		subjects = append(subjects, s)
	}
	subjects = append(subjects, e.retired...)
	e.mu.Unlock()

	for _, s := range subjects {
		if err := s.stop(ctx); err != nil {
			return err
		}
	}
	e.logger.Debug("engine closed", "subjects", len(subjects))
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// acquireSlot reserves a global generation slot without blocking.
func (e *Engine) acquireSlot() bool {
	return e.global.TryAcquire(1)
}

func (e *Engine) releaseSlot() {
	e.global.Release(1)
}

// persist runs a persistence call, logging failures. Persistence problems
// never fail a turn.
func (e *Engine) persist(ctx context.Context, what, subjectID string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		e.logger.Warn("persist failed",
			"op", what,
			"subject_id", subjectID,
			"error", err)
	}
}

func (e *Engine) timestamp() time.Time {
	return e.now.Now()
}
