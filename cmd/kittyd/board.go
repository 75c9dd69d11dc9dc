package main

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/internal/board"
	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/internal/events"
)

var flagRefresh time.Duration

func init() {
	rootCmd.AddCommand(boardCmd)
	boardCmd.Flags().DurationVar(&flagRefresh, "refresh", 2*time.Second, "poll interval")
}

var boardCmd = &cobra.Command{
	Use:   "board [feature]",
	Short: "Show the feature's work packages as a live kanban board",
	Long: `Show the feature's work packages as a kanban board in the terminal.

The board polls on an interval; when events.url points at the bus of a
running kittyd serve, lane moves made by other processes also refresh
it immediately.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The TUI owns the terminal; keep logs out of it.
	logger := zap.NewNop()

	eng, err := engine.New(engine.Config{Settings: cfg, Logger: logger})
	if err != nil {
		return err
	}

	featureSlug := flagFeature
	if len(args) == 1 {
		featureSlug = args[0]
	}
	if featureSlug == "" {
		featureSlug, err = resolveFeature(eng)
		if err != nil {
			return err
		}
	}

	// Live refresh only works against a shared bus; an embedded one
	// would only see this process's own events.
	var eventCh chan *nats.Msg
	if !cfg.Events.Disabled && cfg.Events.URL != "" {
		bus, err := events.NewBus(events.Config{URL: cfg.Events.URL, Logger: logger})
		if err == nil {
			defer bus.Close()
			eventCh = make(chan *nats.Msg, 16)
			if _, err := bus.Subscribe(featureSlug, eventCh); err != nil {
				eventCh = nil
			}
		}
	}

	return board.Run(board.Config{
		Feature:  featureSlug,
		Provider: eng,
		Interval: flagRefresh,
		Events:   eventCh,
	})
}
