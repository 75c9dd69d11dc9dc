package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/internal/events"
	kittyhttp "github.com/bruj0/spec-kitty-sub000/internal/http"
	"github.com/bruj0/spec-kitty-sub000/internal/logging"
	"github.com/bruj0/spec-kitty-sub000/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP status API, event bus, and spec watcher",
	Long: `Run kittyd as a daemon: the HTTP/SSE status API, the event bus
carrying lane and merge events, the spec-directory watcher, and the
background lock sweeper.

Agents keep using the CLI or MCP against the same repository; the
daemon's bus and API give dashboards and reviewers a live view.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// The daemon outlives cmd.Context(); shut down on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx)
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:     cfg.Observability.EnableTelemetry,
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	level := cfg.Observability.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.Observability.ServiceName,
	}, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting kittyd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("events", !cfg.Events.Disabled))

	var bus *events.Bus
	if !cfg.Events.Disabled {
		bus, err = events.NewBus(events.Config{URL: cfg.Events.URL, Logger: logger})
		if err != nil {
			return fmt.Errorf("starting event bus: %w", err)
		}
		defer bus.Close()
	}

	var notifier engine.Notifier
	if bus != nil {
		notifier = bus
	}
	eng, err := engine.New(engine.Config{
		Settings: cfg,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if bus != nil {
		watcher, err := events.NewWatcher(events.WatcherConfig{
			SpecsDir: eng.SpecsDir(),
			Bus:      bus,
			Debounce: cfg.Events.WatchDebounce,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("spec watcher unavailable", zap.Error(err))
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("spec watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	go eng.RunLockSweeper(ctx, cfg.Locks.SweepInterval)

	var streams *kittyhttp.EventStreamer
	if bus != nil {
		streams = kittyhttp.NewEventStreamer(bus, logger)
	}
	srv, err := kittyhttp.NewServer(eng, streams, logger, kittyhttp.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		APIKeys:   cfg.Server.APIKeyValues(),
		RateLimit: cfg.Server.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("building HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
