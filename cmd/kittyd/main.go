// Package main implements kittyd, the multi-agent work-package
// scheduler for git repositories.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/internal/config"
	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/internal/logging"
	"github.com/bruj0/spec-kitty-sub000/pkg/auth"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	flagConfig   string
	flagLogLevel string
	flagFeature  string
	flagActor    string
)

var rootCmd = &cobra.Command{
	Use:   "kittyd",
	Short: "Work-package scheduler for multi-agent development",
	Long: `kittyd coordinates concurrent work packages in one git repository.

Each work package gets an isolated worktree on a branch derived from its
dependencies, moves through lanes (planned, doing, for_review, done,
rejected), and is merged back into the feature's target branch in
dependency order.

Records live under kitty-specs/<feature>/tasks/; scheduler state lives
under .kittify/.`,
	Version:       fmt.Sprintf("%s (%s)", version, gitCommit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <repo>/.kittify/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagFeature, "feature", "", "feature slug (default: feature of the checked-out branch)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "who to record in work-package history (default: OS user)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration for the working directory's
// repository, honoring --config.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return config.Load(cwd, flagConfig)
}

// newLogger builds the process logger from config, honoring
// --log-level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Observability.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return logging.New(logging.Config{
		Level:   level,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.Observability.ServiceName,
	}, nil)
}

// newEngine assembles the engine the short-lived commands run on.
func newEngine() (*engine.Engine, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(engine.Config{Settings: cfg, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return eng, logger, nil
}

// resolveFeature picks the feature to operate on: the --feature flag,
// or the feature owning the checked-out branch.
func resolveFeature(eng *engine.Engine) (string, error) {
	if flagFeature != "" {
		return flagFeature, nil
	}
	f, err := eng.CurrentFeature()
	if err != nil {
		return "", fmt.Errorf("no --feature given and none resolvable from the checked-out branch: %w", err)
	}
	return f.Slug, nil
}

// actor resolves who to record in history.
func actor() string {
	if flagActor != "" {
		return flagActor
	}
	return auth.SystemActor()
}
