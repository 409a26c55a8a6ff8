package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Zero(t, cfg.API.Timeout)
	assert.Equal(t, 6, cfg.List.PageSize)
	assert.Zero(t, cfg.List.PollInterval)
	assert.Equal(t, StorageFile, cfg.Storage.Driver)
	assert.True(t, filepath.IsAbs(cfg.Storage.FilePath) || cfg.Storage.FilePath == ".bde-portal/state.yaml")
	assert.Equal(t, "client_state", cfg.Storage.Table)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("API_BASE_URL", "https://bde.example.edu/api/")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("API_RATE_LIMIT", "2.5")
	t.Setenv("LIST_PAGE_SIZE", "12")
	t.Setenv("LIST_POLL_INTERVAL", "30s")
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("STORAGE_SQLITE_PATH", "/tmp/state.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://bde.example.edu/api", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.InDelta(t, 2.5, cfg.API.RateLimit, 0.001)
	assert.Equal(t, 12, cfg.List.PageSize)
	assert.Equal(t, 30*time.Second, cfg.List.PollInterval)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/state.db", cfg.Storage.SQLitePath)
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LIST_PAGE_SIZE=9\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("LIST_PAGE_SIZE")
		_ = os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.List.PageSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, time.Second, parseDuration("1s", time.Minute))
}
