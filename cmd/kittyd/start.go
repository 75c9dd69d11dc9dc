package main

import (
	"github.com/spf13/cobra"
)

var flagBase string

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&flagBase, "base", "", "explicit base branch (required for units with two or more dependencies)")
}

var startCmd = &cobra.Command{
	Use:   "start <unit>",
	Short: "Start a work package in an isolated worktree",
	Long: `Start a work package: create its worktree on the resolved base branch
and move it from planned (or rejected) to doing.

The base is resolved from the unit's dependencies: no dependencies bases
off the feature target, one dependency bases off that dependency's
branch (or the target once it is done), and two or more dependencies
require an explicit --base.

Examples:
  # Start WP03 of the checked-out feature
  kittyd start WP03

  # Start a multi-parent unit on an explicit base
  kittyd start WP07 --base user-auth-WP05`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	featureSlug, err := resolveFeature(eng)
	if err != nil {
		return err
	}

	res, err := eng.Start(cmd.Context(), featureSlug, args[0], flagBase, actor())
	if err != nil {
		return err
	}

	cmd.Printf("%s is now %s\n", res.Unit.ID, res.Unit.Lane)
	cmd.Printf("  branch:    %s\n", res.Workspace.Branch)
	cmd.Printf("  worktree:  %s\n", res.Workspace.Path)
	cmd.Printf("  base:      %s (%s)\n", res.Resolution.Base, res.Resolution.Source)
	if res.Workspace.Reused {
		cmd.Println("  (worktree already existed and was reused)")
	}
	if !res.Ready {
		cmd.Println("  note: not all dependencies are done; the workspace bases off in-progress work")
	}
	if res.Resolution.Advisory != "" {
		cmd.Printf("  advisory:  %s\n", res.Resolution.Advisory)
	}
	return nil
}
