package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/moments/internal/compiler"
	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/notify"
	"github.com/roach88/moments/internal/testutil"
)

const catalogYAML = `
artifacts:
  - id: report
moments:
  - id: videos_ready
    prerequisite:
      videos_uploaded: ">= 3"
    artifact: report
    message: "{videos_uploaded} videos uploaded"
  - id: welcome
    prerequisite:
      onboarded: true
    card:
      card_id: welcome_card
      content:
        title: Welcome
actions:
  - id: share_report
    prerequisite:
      plan: pro
`

type fakeLoader struct {
	snaps map[string]*ir.SubjectSnapshot
	calls int
	err   error
}

func (f *fakeLoader) LoadSnapshot(_ context.Context, subjectID string) (*ir.SubjectSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if snap, ok := f.snaps[subjectID]; ok {
		return snap, nil
	}
	return &ir.SubjectSnapshot{SubjectID: subjectID}, nil
}

func newTestServer(t *testing.T, loader SnapshotLoader) (*Server, *engine.Engine) {
	t.Helper()

	doc, raw, err := compiler.ParseYAML([]byte(catalogYAML))
	require.NoError(t, err)
	cat, err := compiler.Compile(doc, raw)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := notify.NewHub(notify.WithHubLogger(logger))
	e := engine.New(cat, testutil.NewScriptedGenerator(),
		engine.WithLogger(logger),
		engine.WithDispatcher(hub),
		engine.WithIDGenerator(engine.NewSequenceGenerator("card")),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})

	return New(":0", e, hub, loader, logger), e
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTurn(t *testing.T) {
	s, e := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/subjects/fam-1/turns", `{"videos_uploaded": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res ir.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "fam-1", res.SubjectID)
	assert.Equal(t, int64(1), res.Turn)
	require.Len(t, res.MomentsFired, 1)
	assert.Equal(t, "videos_ready", res.MomentsFired[0].ID)
	assert.Equal(t, "3 videos uploaded", res.MomentsFired[0].Message)
	assert.Equal(t, []string{"report"}, res.ArtifactsGenerating)

	require.NoError(t, e.Wait(context.Background(), "fam-1"))
}

func TestTurn_EmptyBodyIsEmptyContext(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/subjects/fam-1/turns", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res ir.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.MomentsFired)
}

func TestTurn_BadJSON(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/subjects/fam-1/turns", `[1, 2`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "decode context")
}

func TestTurn_LazyRestore(t *testing.T) {
	loader := &fakeLoader{snaps: map[string]*ir.SubjectSnapshot{
		"fam-1": {
			SubjectID:   "fam-1",
			Turn:        4,
			Transitions: map[string]bool{"videos_ready": true},
		},
	}}
	s, _ := newTestServer(t, loader)

	rec := do(t, s, http.MethodPost, "/subjects/fam-1/turns", `{"videos_uploaded": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res ir.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(5), res.Turn)
	assert.Empty(t, res.MomentsFired, "condition was already met before the restart")

	do(t, s, http.MethodPost, "/subjects/fam-1/turns", `{}`)
	assert.Equal(t, 1, loader.calls, "subject restored once")
}

func TestTurn_LoaderFailure(t *testing.T) {
	s, _ := newTestServer(t, &fakeLoader{err: errors.New("disk on fire")})

	rec := do(t, s, http.MethodPost, "/subjects/fam-1/turns", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk on fire")
}

func TestSnapshotAndDelete(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(t, s, http.MethodPost, "/subjects/s1/turns", `{"onboarded": true}`)

	rec := do(t, s, http.MethodGet, "/subjects/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap ir.SubjectSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Turn)
	require.Len(t, snap.Cards, 1)

	rec = do(t, s, http.MethodDelete, "/subjects/s1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/subjects/s1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(0), snap.Turn)
	assert.Empty(t, snap.Cards)
}

func TestDismiss(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(t, s, http.MethodPost, "/subjects/s1/turns", `{"onboarded": true}`)

	rec := do(t, s, http.MethodPost, "/subjects/s1/cards/card-1/dismiss", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/subjects/s1", "")
	var snap ir.SubjectSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Cards, 1)
	assert.True(t, snap.Cards[0].Dismissed)
	assert.Equal(t, ir.DismissUser, snap.Cards[0].DismissCause)
}

func TestDismiss_ActionCause(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(t, s, http.MethodPost, "/subjects/s1/turns", `{"onboarded": true}`)
	rec := do(t, s, http.MethodPost, "/subjects/s1/cards/card-1/dismiss", `{"cause": "action"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/subjects/s1", "")
	var snap ir.SubjectSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, ir.DismissAction, snap.Cards[0].DismissCause)
}

func TestDismiss_UnknownCard(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/subjects/s1/cards/nope/dismiss", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeasibility(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/subjects/s1/actions/share_report/feasibility", `{"plan": "free"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var f ir.Feasibility
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.False(t, f.Feasible)
	assert.Len(t, f.Missing, 1)

	rec = do(t, s, http.MethodPost, "/subjects/s1/actions/share_report/feasibility", `{"plan": "pro"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.True(t, f.Feasible)

	rec = do(t, s, http.MethodPost, "/subjects/s1/actions/launch_rocket/feasibility", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClosedEngine(t *testing.T) {
	s, e := newTestServer(t, nil)
	require.NoError(t, e.Close(context.Background()))

	rec := do(t, s, http.MethodPost, "/subjects/s1/turns", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEvents_StreamsArtifactUpdates(t *testing.T) {
	s, e := newTestServer(t, nil)
	ts := httptest.NewServer(s.Router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/subjects/fam-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": subscribed\n", line)

	turn, err := http.Post(ts.URL+"/subjects/fam-1/turns", "application/json", strings.NewReader(`{"videos_uploaded": 3}`))
	require.NoError(t, err)
	turn.Body.Close()
	require.Equal(t, http.StatusOK, turn.StatusCode)

	var events []string
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"artifact", "artifact"}, events)
	require.NoError(t, e.Wait(context.Background(), "fam-1"))
}
