// Package config loads kittyd configuration from the repository's
// .kittify/config.yaml with KITTY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete kittyd configuration.
type Config struct {
	Repo          RepoConfig          `koanf:"repo"`
	Server        ServerConfig        `koanf:"server"`
	Locks         LockConfig          `koanf:"locks"`
	Merge         MergeConfig         `koanf:"merge"`
	Events        EventsConfig        `koanf:"events"`
	Scrub         ScrubConfig         `koanf:"scrub"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// RepoConfig locates the coordinated repository.
type RepoConfig struct {
	// Root is the repository root. Relative paths resolve against the
	// process working directory.
	Root string `koanf:"root"`

	// Trunk is the branch feature targets fork from.
	Trunk string `koanf:"trunk"`
}

// ServerConfig holds the HTTP/SSE server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// APIKeys guard the HTTP surface. Empty means the transport is
	// trusted (local single-host use).
	APIKeys []Secret `koanf:"api_keys"`

	// RateLimit caps requests per second per caller. Zero disables.
	RateLimit float64 `koanf:"rate_limit"`
}

// APIKeyValues unwraps the configured keys.
func (s ServerConfig) APIKeyValues() []string {
	if len(s.APIKeys) == 0 {
		return nil
	}
	keys := make([]string, len(s.APIKeys))
	for i, k := range s.APIKeys {
		keys[i] = k.Value()
	}
	return keys
}

// LockConfig tunes the advisory lock manager.
type LockConfig struct {
	// Timeout bounds how long an operation waits for a lock.
	Timeout time.Duration `koanf:"timeout"`

	// SweepInterval is how often serve mode reaps stale lock markers.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// MergeConfig tunes the merge orchestrator.
type MergeConfig struct {
	// DeleteBranches removes unit branches after a fully successful
	// merge instead of keeping them around.
	DeleteBranches bool `koanf:"delete_branches"`

	// Actor names automated merges in work-package history.
	Actor string `koanf:"actor"`
}

// EventsConfig tunes the embedded event bus and the task-file watcher.
type EventsConfig struct {
	Disabled bool `koanf:"disabled"`

	// URL connects to an external NATS server so several kittyd
	// processes share one bus. Empty embeds a server in-process.
	URL string `koanf:"url"`

	// WatchDebounce coalesces bursts of filesystem notifications for
	// the same unit into one event.
	WatchDebounce time.Duration `koanf:"watch_debounce"`
}

// ScrubConfig tunes secret scrubbing of agent-authored notes.
type ScrubConfig struct {
	Disabled bool `koanf:"disabled"`

	// UserAllowlist is an optional path to a user-level allowlist
	// merged with the repository's .kittify/allowlist.toml.
	UserAllowlist string `koanf:"user_allowlist"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	ServiceName     string `koanf:"service_name"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Repo.Trunk == "" {
		return errors.New("repo trunk cannot be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative: %f", c.Server.RateLimit)
	}
	if c.Locks.Timeout <= 0 {
		return errors.New("lock timeout must be positive")
	}
	if c.Locks.SweepInterval < 0 {
		return errors.New("lock sweep interval cannot be negative")
	}
	if c.Events.WatchDebounce < 0 {
		return errors.New("watch debounce cannot be negative")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q (must be json or console)", c.Observability.LogFormat)
	}
	return nil
}
