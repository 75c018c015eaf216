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

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.Storage.Root))
	assert.Equal(t, 5*time.Second, cfg.Retry.Backoff.Duration())
	assert.Equal(t, CacheLayoutEngine, cfg.Cache.Layout)
	assert.False(t, cfg.Cache.Disabled)
	assert.Equal(t, "https://github.com/%s.git", cfg.Git.RemoteTemplate)
	assert.Equal(t, "git@github.com:%s.git", cfg.Git.SSHRemoteTemplate)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.GitHub.Token.IsSet())
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.Layout, cfg.Cache.Layout)
}

func TestLoad_YAML(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
storage:
  root: `+root+`
retry:
  backoff: 250ms
cache:
  layout: legacy
git:
  author_name: Fixer
  author_email: fixer@example.com
github:
  token: ghp_secret
  requests_per_second: 2.5
logging:
  level: debug
  format: console
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Storage.Root)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Backoff.Duration())
	assert.Equal(t, CacheLayoutLegacy, cfg.Cache.Layout)
	assert.Equal(t, "Fixer", cfg.Git.AuthorName)
	assert.Equal(t, "ghp_secret", cfg.GitHub.Token.Value())
	assert.Equal(t, 2.5, cfg.GitHub.RequestsPerSecond)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "git:\n  author_name: FromFile\n", 0o600)
	t.Setenv("STYLEFIX_GIT_AUTHOR_NAME", "FromEnv")
	t.Setenv("STYLEFIX_CACHE_LAYOUT", "legacy")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", cfg.Git.AuthorName)
	assert.Equal(t, CacheLayoutLegacy, cfg.Cache.Layout)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeConfig(t, "logging:\n  level: info\n", 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"relative root", "storage:\n  root: relative/dir\n", "storage.root must be absolute"},
		{"unknown layout", "cache:\n  layout: sharded\n", "cache.layout"},
		{"template without verb", "git:\n  remote_template: https://example.com/repo.git\n", "git.remote_template"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
		{"telemetry without endpoint", "telemetry:\n  enabled: true\n", "telemetry.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content, 0o600))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "git.author_name", envKey("STYLEFIX_GIT_AUTHOR_NAME"))
	assert.Equal(t, "retry.backoff", envKey("STYLEFIX_RETRY_BACKOFF"))
	assert.Equal(t, "storage", envKey("STYLEFIX_STORAGE"))
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("ghp_abc")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))
	assert.Equal(t, "ghp_abc", s.Value())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
