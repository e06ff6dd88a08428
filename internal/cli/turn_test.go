package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/moments/internal/ir"
)

type turnResponse struct {
	Status string     `json:"status"`
	Data   TurnOutput `json:"data"`
}

func runTurnCmd(t *testing.T, db string, stdin string, args ...string) (*turnResponse, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTurnCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--catalog", "testdata/catalog.yaml", "--db", db}, args...))

	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	var resp turnResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return &resp, nil
}

func TestTurn_FiresAndGenerates(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	resp, err := runTurnCmd(t, db, "", "--subject", "fam-1", "testdata/context.yaml")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	res := resp.Data.Result
	require.NotNil(t, res)
	assert.Equal(t, int64(1), res.Turn)
	require.Len(t, res.MomentsFired, 1)
	assert.Equal(t, "videos_ready", res.MomentsFired[0].ID)
	assert.Equal(t, "3 videos uploaded", res.MomentsFired[0].Message)
	assert.Equal(t, []string{"report"}, res.ArtifactsGenerating)
	require.Len(t, res.CardsVisible, 1)
	assert.Equal(t, "report_card", res.CardsVisible[0].CardID)

	require.Len(t, resp.Data.Artifacts, 1)
	art := resp.Data.Artifacts[0]
	assert.Equal(t, ir.StatusReady, art.Status)
	assert.Equal(t, "3 videos for fam-1", art.Content["text"])
}

func TestTurn_RestoresSubjectAcrossRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	_, err := runTurnCmd(t, db, "", "--subject", "fam-1", "testdata/context.yaml")
	require.NoError(t, err)

	resp, err := runTurnCmd(t, db, `{"videos_uploaded": 4}`, "--subject", "fam-1", "-")
	require.NoError(t, err)

	res := resp.Data.Result
	assert.Equal(t, int64(2), res.Turn)
	assert.Empty(t, res.MomentsFired)
	assert.Empty(t, res.ArtifactsGenerating)
	require.Len(t, resp.Data.Artifacts, 1)
	assert.Equal(t, ir.StatusReady, resp.Data.Artifacts[0].Status)
}

func TestTurn_SubjectsAreIsolated(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	_, err := runTurnCmd(t, db, "", "--subject", "fam-1", "testdata/context.yaml")
	require.NoError(t, err)

	resp, err := runTurnCmd(t, db, "", "--subject", "fam-2", "testdata/context.yaml")
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Data.Result.Turn)
	require.Len(t, resp.Data.Result.MomentsFired, 1)
}

func TestTurn_RequiresSubject(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")
	_, err := runTurnCmd(t, db, "", "testdata/context.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestTurn_BadContext(t *testing.T) {
	dir := t.TempDir()
	ctxFile := filepath.Join(dir, "ctx.yaml")
	require.NoError(t, os.WriteFile(ctxFile, []byte("videos_uploaded: [unclosed"), 0o644))

	_, err := runTurnCmd(t, filepath.Join(dir, "state.db"), "", "--subject", "fam-1", ctxFile)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTurn_TextOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")
	buf := &bytes.Buffer{}
	cmd := NewTurnCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--catalog", "testdata/catalog.yaml", "--db", db, "--subject", "fam-1", "testdata/context.yaml"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Turn 1 for fam-1")
	assert.Contains(t, out, "✓ videos_ready: 3 videos uploaded")
	assert.Contains(t, out, "report: ready (attempt 1)")
}
