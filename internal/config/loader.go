package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// relConfigPath is the project config file, relative to the
	// repository root.
	relConfigPath = ".kittify/config.yaml"

	maxConfigFileSize = 1024 * 1024
)

// envPrefix namespaces kittyd environment variables.
const envPrefix = "KITTY_"

// Load builds the configuration for a repository.
//
// Precedence, highest first:
//  1. KITTY_* environment variables (KITTY_SERVER_PORT, KITTY_REPO_TRUNK, ...)
//  2. The YAML config file (configPath, or <root>/.kittify/config.yaml)
//  3. Defaults
//
// A config file that stores API keys must not be group or world
// readable.
func Load(root, configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = filepath.Join(root, filepath.FromSlash(relConfigPath))
	}

	if _, err := os.Stat(configPath); err == nil {
		fileK, err := loadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Merge(fileK); err != nil {
			return nil, fmt.Errorf("merging config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg, root)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFile reads and parses one config file, enforcing the size cap
// and, when the file stores API keys, owner-only permissions. The file
// is opened once and all checks run on that descriptor.
func loadFile(path string) (*koanf.Koanf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("statting config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if k.Exists("server.api_keys") && runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return nil, fmt.Errorf("config file %s stores API keys but has permissions %v; tighten to 0600", path, perm)
		}
	}
	return k, nil
}

// envTransform maps KITTY_SECTION_FIELD_NAME to section.field_name.
// The split happens at the first underscore after the prefix; field
// names keep theirs.
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyDefaults fills in values the file and environment left unset.
func applyDefaults(cfg *Config, root string) {
	if cfg.Repo.Root == "" {
		if root == "" {
			root = "."
		}
		cfg.Repo.Root = root
	}
	if cfg.Repo.Trunk == "" {
		cfg.Repo.Trunk = "main"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9119
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Locks.Timeout == 0 {
		cfg.Locks.Timeout = 5 * time.Minute
	}
	if cfg.Locks.SweepInterval == 0 {
		cfg.Locks.SweepInterval = 10 * time.Minute
	}

	if cfg.Merge.Actor == "" {
		cfg.Merge.Actor = "kittyd"
	}

	if cfg.Events.WatchDebounce == 0 {
		cfg.Events.WatchDebounce = 250 * time.Millisecond
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "kittyd"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
}
