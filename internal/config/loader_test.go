package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(root, ".kittify")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Repo.Root)
	assert.Equal(t, "main", cfg.Repo.Trunk)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9119, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Server.APIKeyValues())
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Equal(t, 5*time.Minute, cfg.Locks.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Locks.SweepInterval)
	assert.Equal(t, "kittyd", cfg.Merge.Actor)
	assert.False(t, cfg.Merge.DeleteBranches)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.WatchDebounce)
	assert.Equal(t, "kittyd", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoad_FromFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
repo:
  trunk: develop
server:
  port: 7777
  rate_limit: 5
locks:
  timeout: 30s
merge:
  delete_branches: true
  actor: merge-bot
observability:
  log_level: debug
  log_format: console
`, 0o644)

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "develop", cfg.Repo.Trunk)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, float64(5), cfg.Server.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Locks.Timeout)
	assert.True(t, cfg.Merge.DeleteBranches)
	assert.Equal(t, "merge-bot", cfg.Merge.Actor)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "console", cfg.Observability.LogFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "server:\n  port: 7777\n", 0o644)
	t.Setenv("KITTY_SERVER_PORT", "8888")
	t.Setenv("KITTY_REPO_TRUNK", "trunk")
	t.Setenv("KITTY_LOCKS_TIMEOUT", "45s")

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "trunk", cfg.Repo.Trunk)
	assert.Equal(t, 45*time.Second, cfg.Locks.Timeout)
}

func TestLoad_APIKeysFromEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("KITTY_SERVER_API_KEYS", "key-one,key-two")

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"key-one", "key-two"}, cfg.Server.APIKeyValues())
	// The Secret wrapper redacts when printed.
	assert.Equal(t, "[REDACTED]", cfg.Server.APIKeys[0].String())
}

func TestLoad_APIKeysInFileRequireTightPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	root := t.TempDir()
	content := "server:\n  api_keys:\n    - shared-key\n"

	writeConfig(t, root, content, 0o644)
	_, err := Load(root, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tighten to 0600")

	require.NoError(t, os.Chmod(filepath.Join(root, ".kittify", "config.yaml"), 0o600))
	cfg, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-key"}, cfg.Server.APIKeyValues())
}

func TestLoad_ExplicitPath(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "kitty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 6543\n"), 0o644))

	cfg, err := Load(root, path)
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Server.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "server: [not a map", 0o644)

	_, err := Load(root, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad port", "server:\n  port: 99999\n", "invalid server port"},
		{"bad log level", "observability:\n  log_level: loud\n", "invalid log level"},
		{"bad log format", "observability:\n  log_format: xml\n", "invalid log format"},
		{"negative rate limit", "server:\n  rate_limit: -1\n", "rate limit cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.yaml, 0o644)
			_, err := Load(root, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvTransform(t *testing.T) {
	for _, tt := range [][2]string{
		{"KITTY_SERVER_PORT", "server.port"},
		{"KITTY_SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"KITTY_REPO_TRUNK", "repo.trunk"},
		{"KITTY_OBSERVABILITY_LOG_LEVEL", "observability.log_level"},
		{"KITTY_OBSERVABILITY_SERVICE_NAME", "observability.service_name"},
		{"KITTY_MERGE_DELETE_BRANCHES", "merge.delete_branches"},
		{"KITTY_EVENTS_WATCH_DEBOUNCE", "events.watch_debounce"},
	} {
		assert.Equal(t, tt[1], envTransform(tt[0]), tt[0])
	}
}
