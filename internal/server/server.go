// Package server exposes an engine over HTTP: turns, card dismissal,
// feasibility queries and a server-sent event stream of notifications.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/notify"
)

// SnapshotLoader reads persisted subject state; store.Store implements it.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, subjectID string) (*ir.SubjectSnapshot, error)
}

// RequestTimeout bounds every non-streaming request.
const RequestTimeout = 30 * time.Second

type Server struct {
	Router *chi.Mux
	Addr   string

	engine *engine.Engine
	hub    *notify.Hub
	loader SnapshotLoader
	logger *slog.Logger

	mu       sync.Mutex
	restored map[string]bool
}

// New builds the router. loader may be nil when nothing is persisted.
func New(addr string, e *engine.Engine, hub *notify.Hub, loader SnapshotLoader, logger *slog.Logger) *Server {
	s := &Server{
		Addr:     addr,
		engine:   e,
		hub:      hub,
		loader:   loader,
		logger:   logger,
		restored: make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "moments")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/subjects/{subjectID}", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(RequestTimeout))
			r.Post("/turns", s.handleTurn)
			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleDelete)
			r.Post("/cards/{instanceID}/dismiss", s.handleDismiss)
			r.Post("/artifacts/{artifactID}/reset", s.handleReset)
			r.Post("/actions/{actionID}/feasibility", s.handleFeasibility)
		})
	})

	s.Router = r
	return s
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Router}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", s.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ensureRestored hydrates a subject from persistence the first time the
// server touches it.
func (s *Server) ensureRestored(ctx context.Context, subjectID string) error {
	if s.loader == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restored[subjectID] {
		return nil
	}

	snap, err := s.loader.LoadSnapshot(ctx, subjectID)
	if err != nil {
		return err
	}
	if snap.Turn > 0 || len(snap.Artifacts) > 0 || len(snap.Cards) > 0 {
		if err := s.engine.Restore(ctx, snap); err != nil {
			return err
		}
	}
	s.restored[subjectID] = true
	return nil
}

func (s *Server) forget(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.restored, subjectID)
}
