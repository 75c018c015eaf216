// Package config loads the stylefix process configuration.
//
// Values come from an optional YAML file, overridden by STYLEFIX_* environment
// variables, with hardcoded defaults filling whatever is left unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache layouts understood by the cache manager.
const (
	CacheLayoutEngine = "engine"
	CacheLayoutLegacy = "legacy"
)

// Config holds the complete stylefix configuration.
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Retry     RetryConfig     `koanf:"retry"`
	Cache     CacheConfig     `koanf:"cache"`
	Git       GitConfig       `koanf:"git"`
	GitHub    GitHubConfig    `koanf:"github"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

// StorageConfig controls where working copies and caches are kept.
type StorageConfig struct {
	Root string `koanf:"root"`
}

// RetryConfig controls the delete-and-retry of repository setup.
type RetryConfig struct {
	Backoff Duration `koanf:"backoff"`
}

// CacheConfig controls incremental analysis caching.
type CacheConfig struct {
	Disabled bool   `koanf:"disabled"`
	Layout   string `koanf:"layout"`
}

// GitConfig holds transport and commit identity settings.
type GitConfig struct {
	AuthorName        string `koanf:"author_name"`
	AuthorEmail       string `koanf:"author_email"`
	RemoteTemplate    string `koanf:"remote_template"`
	SSHRemoteTemplate string `koanf:"ssh_remote_template"`
	SSHUser           string `koanf:"ssh_user"`
}

// GitHubConfig holds hosting API settings.
type GitHubConfig struct {
	Token             Secret  `koanf:"token"`
	BaseURL           string  `koanf:"base_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// LoggingConfig is the subset of logger settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the subset of OpenTelemetry settings exposed to operators.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	Insecure    bool   `koanf:"insecure"`
	ServiceName string `koanf:"service_name"`
}

// ServerConfig controls the HTTP API started by the serve command.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return errors.New("storage.root is required")
	}
	if !filepath.IsAbs(c.Storage.Root) {
		return fmt.Errorf("storage.root must be absolute, got %q", c.Storage.Root)
	}
	switch c.Cache.Layout {
	case CacheLayoutEngine, CacheLayoutLegacy:
	default:
		return fmt.Errorf("cache.layout must be %q or %q, got %q", CacheLayoutEngine, CacheLayoutLegacy, c.Cache.Layout)
	}
	if c.Git.AuthorName == "" || c.Git.AuthorEmail == "" {
		return errors.New("git.author_name and git.author_email are required")
	}
	for name, tmpl := range map[string]string{
		"git.remote_template":     c.Git.RemoteTemplate,
		"git.ssh_remote_template": c.Git.SSHRemoteTemplate,
	} {
		if strings.Count(tmpl, "%s") != 1 {
			return fmt.Errorf("%s must contain exactly one %%s, got %q", name, tmpl)
		}
	}
	if c.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("github.requests_per_second must be positive, got %v", c.GitHub.RequestsPerSecond)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = defaultStorageRoot()
	}
	if cfg.Retry.Backoff == 0 {
		cfg.Retry.Backoff = Duration(5 * time.Second)
	}
	if cfg.Cache.Layout == "" {
		cfg.Cache.Layout = CacheLayoutEngine
	}

	if cfg.Git.AuthorName == "" {
		cfg.Git.AuthorName = "StyleCI Bot"
	}
	if cfg.Git.AuthorEmail == "" {
		cfg.Git.AuthorEmail = "bot@styleci.io"
	}
	if cfg.Git.RemoteTemplate == "" {
		cfg.Git.RemoteTemplate = "https://github.com/%s.git"
	}
	if cfg.Git.SSHRemoteTemplate == "" {
		cfg.Git.SSHRemoteTemplate = "git@github.com:%s.git"
	}
	if cfg.Git.SSHUser == "" {
		cfg.Git.SSHUser = "git"
	}

	if cfg.GitHub.RequestsPerSecond == 0 {
		cfg.GitHub.RequestsPerSecond = 1
	}
	if cfg.GitHub.Burst == 0 {
		cfg.GitHub.Burst = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "stylefix"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
}

func defaultStorageRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "stylefix")
	}
	return filepath.Join(os.TempDir(), "stylefix")
}
