package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/ir"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type dismissRequest struct {
	Cause ir.DismissCause `json:"cause"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	input, err := decodeContext(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ensureRestored(r.Context(), subjectID); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), subjectID, input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if err := s.ensureRestored(r.Context(), subjectID); err != nil {
		s.fail(w, r, err)
		return
	}
	snap, err := s.engine.Snapshot(r.Context(), subjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if err := s.engine.DeleteSubject(r.Context(), subjectID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.forget(subjectID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	instanceID := chi.URLParam(r, "instanceID")

	req := dismissRequest{Cause: ir.DismissUser}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
	}
	if err := s.ensureRestored(r.Context(), subjectID); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.engine.DismissCard(r.Context(), subjectID, instanceID, req.Cause); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	artifactID := chi.URLParam(r, "artifactID")
	if err := s.ensureRestored(r.Context(), subjectID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ResetArtifact(r.Context(), subjectID, artifactID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeasibility(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	actionID := chi.URLParam(r, "actionID")

	input, err := decodeContext(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, ok := s.engine.Catalog().Action(actionID); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", actionID))
		return
	}
	if err := s.ensureRestored(r.Context(), subjectID); err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := s.engine.IsActionFeasibleFor(r.Context(), subjectID, actionID, input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeSSE(w, r, chi.URLParam(r, "subjectID"))
}

// fail maps engine errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrGenerationInFlight):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, r.Context().Err()):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

// decodeContext reads a JSON object body as a turn context. An empty body is
// an empty context.
func decodeContext(r *http.Request) (condition.Context, error) {
	input := condition.Context{}
	if r.Body == nil {
		return input, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		if errors.Is(err, io.EOF) {
			return condition.Context{}, nil
		}
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return input, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
