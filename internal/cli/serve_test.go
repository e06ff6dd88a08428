package cli

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/store"
)

func TestReportPersisted(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.SaveTransitions(ctx, "fam-1", 2, map[string]bool{"videos_ready": true}))
	require.NoError(t, st.SaveTransitions(ctx, "fam-2", 1, map[string]bool{}))
	require.NoError(t, st.SaveArtifact(ctx, ir.Artifact{SubjectID: "fam-1", ArtifactID: "report", Status: ir.StatusGenerating}))

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	require.NoError(t, reportPersisted(ctx, st, logger))

	out := buf.String()
	assert.Contains(t, out, "subjects=2")
	assert.Contains(t, out, "interrupted generations found")
	assert.Contains(t, out, "artifacts=1")
}

func TestReportPersisted_EmptyStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), store.WithDriver(store.DriverPure))
	require.NoError(t, err)
	defer st.Close()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	require.NoError(t, reportPersisted(context.Background(), st, logger))

	assert.Contains(t, buf.String(), "subjects=0")
	assert.NotContains(t, buf.String(), "interrupted")
}
