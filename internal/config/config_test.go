package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 4, cfg.Engine.MaxVisibleCards)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentGenerations)
	assert.Equal(t, 2*time.Minute, cfg.Engine.GenerationTimeout)
	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
engine:
  max_attempts: 5
  generation_timeout: 30s
storage:
  driver: sqlite
  path: /var/lib/moments.db
catalog:
  path: catalog.cue
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, 4, cfg.Engine.MaxVisibleCards, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Engine.GenerationTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "catalog.cue", cfg.Catalog.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "engine:\n  max_attempts: 5\n")
	t.Setenv("MOMENTS_ENGINE__MAX_ATTEMPTS", "7")
	t.Setenv("MOMENTS_SERVER__ADDR", "127.0.0.1:9000")
	t.Setenv("MOMENTS_TELEMETRY__ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxAttempts)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, `
engine:
  max_attempts: 0
storage:
  driver: postgres
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_attempts must be positive")
	assert.Contains(t, err.Error(), "storage.driver must be sqlite3 or sqlite")
}

func TestEngineConfig_Options(t *testing.T) {
	cfg := EngineConfig{MaxAttempts: 2, MaxVisibleCards: 1, MaxConcurrentGenerations: 1, GlobalGenerations: 8}
	assert.Len(t, cfg.Options(), 4)
}
