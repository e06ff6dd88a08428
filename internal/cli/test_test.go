package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
artifacts:
  - id: report
moments:
  - id: videos_ready
    prerequisite:
      videos_uploaded: ">= 3"
    artifact: report
`

const passingScenario = `
name: report_fires
description: "Report fires when enough videos are uploaded"
catalog: ../catalog.yaml
steps:
  - turn:
      videos_uploaded: 3
    expect:
      fired: [videos_ready]
assertions:
  - type: artifact
    artifact: report
    status: ready
`

const failingScenario = `
name: report_never_fires
description: "Expects a firing that cannot happen"
catalog: ../catalog.yaml
steps:
  - turn:
      videos_uploaded: 1
    expect:
      fired: [videos_ready]
`

// scenarioDir writes scenarios one directory below their catalog.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(testCatalog), 0o644))
	scenDir := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenDir, 0o755))
	for name, body := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(scenDir, name+".yaml"), []byte(body), 0o644))
	}
	return scenDir
}

func runTestCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommand_Passing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"report_fires": passingScenario})

	out, err := runTestCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ report_fires")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_Failing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"report_fires":       passingScenario,
		"report_never_fires": failingScenario,
	})

	out, err := runTestCmd(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"report_fires":       passingScenario,
		"report_never_fires": failingScenario,
	})

	out, err := runTestCmd(t, "text", dir, "--filter", "report_fires")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_UpdateThenCompareGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"report_fires": passingScenario})

	_, err := runTestCmd(t, "text", dir, "--update")
	require.NoError(t, err)

	goldenPath := filepath.Join(dir, "golden", "report_fires.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"videos_ready"`)

	_, err = runTestCmd(t, "text", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0o644))
	out, err := runTestCmd(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_MissingPath(t *testing.T) {
	_, err := runTestCmd(t, "text", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
