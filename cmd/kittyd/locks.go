package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(locksCmd)
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksSweepCmd)
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and reclaim advisory lock markers",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List currently held lock markers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, logger, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		owners, err := eng.Locks()
		if err != nil {
			return err
		}
		if len(owners) == 0 {
			cmd.Println("No locks held")
			return nil
		}
		for _, o := range owners {
			cmd.Printf("  %-24s pid %-8d host %-16s held %s\n",
				o.ResourceID, o.PID, o.Hostname, time.Since(o.AcquiredAt).Round(time.Second))
		}
		return nil
	},
}

var locksSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim markers held by dead or expired owners",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, logger, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		reclaimed, err := eng.SweepLocks(cmd.Context())
		if err != nil {
			return err
		}
		if len(reclaimed) == 0 {
			cmd.Println("Nothing to reclaim")
			return nil
		}
		cmd.Printf("Reclaimed %d marker(s): %s\n", len(reclaimed), strings.Join(reclaimed, ", "))
		return nil
	},
}
