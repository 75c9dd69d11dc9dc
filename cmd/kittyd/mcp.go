package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/internal/logging"
	"github.com/bruj0/spec-kitty-sub000/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the scheduler tools over MCP on stdio",
	Long: `Serve the scheduler to coding agents over the Model Context Protocol.

The server speaks stdio, which is how agent frontends spawn it. Logs go
to stderr so they cannot corrupt the protocol stream.

Tools: work_package_start, work_package_advance, feature_status,
feature_merge, workspace_list, lock_sweep.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Observability.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger, err := logging.New(logging.Config{
		Level:    level,
		Format:   cfg.Observability.LogFormat,
		Service:  cfg.Observability.ServiceName,
		ToStderr: true,
	}, nil)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eng, err := engine.New(engine.Config{Settings: cfg, Logger: logger})
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(&mcp.Config{
		Version:      version,
		DefaultActor: actor(),
		Logger:       logger,
	}, eng)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
