package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/moments/internal/ir"
)

func runFeasibleCmd(t *testing.T, format, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewFeasibleCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--catalog", "testdata/catalog.yaml"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestFeasible_Feasible(t *testing.T) {
	out, err := runFeasibleCmd(t, "text", "plan: free", "upgrade", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ upgrade is feasible")
}

func TestFeasible_NotFeasible(t *testing.T) {
	out, err := runFeasibleCmd(t, "json", "plan: pro", "share_report", "-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInfeasible)

	var resp struct {
		Status string         `json:"status"`
		Data   ir.Feasibility `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Feasible)
	assert.Equal(t, "share_report", resp.Data.ActionID)
	assert.NotEmpty(t, resp.Data.Missing)
}

func TestFeasible_NoContext(t *testing.T) {
	out, err := runFeasibleCmd(t, "text", "", "upgrade")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ upgrade is not feasible")
}

func TestFeasible_UnknownAction(t *testing.T) {
	out, err := runFeasibleCmd(t, "text", "", "teleport")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `unknown action "teleport"`)
}

func TestFeasible_SeesSubjectArtifacts(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	_, err := runTurnCmd(t, db, "", "--subject", "fam-1", "testdata/context.yaml")
	require.NoError(t, err)

	out, err := runFeasibleCmd(t, "text", "plan: pro", "--db", db, "--subject", "fam-1", "share_report", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ share_report is feasible")
}
