package main

import (
	"github.com/spf13/cobra"
)

var flagDeleteBranch bool

func init() {
	rootCmd.AddCommand(workspacesCmd)
	workspacesCmd.AddCommand(workspacesListCmd)
	workspacesCmd.AddCommand(workspacesRemoveCmd)
	workspacesRemoveCmd.Flags().BoolVar(&flagDeleteBranch, "delete-branch", false, "also delete the unit's branch")
}

var workspacesCmd = &cobra.Command{
	Use:     "workspaces",
	Aliases: []string{"ws"},
	Short:   "Inspect and clean up per-unit worktrees",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the feature's existing worktrees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, logger, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		featureSlug, err := resolveFeature(eng)
		if err != nil {
			return err
		}
		workspaces, err := eng.Workspaces(cmd.Context(), featureSlug)
		if err != nil {
			return err
		}
		if len(workspaces) == 0 {
			cmd.Println("No worktrees")
			return nil
		}
		for _, ws := range workspaces {
			cmd.Printf("  %-6s %-24s %s\n", ws.UnitID, ws.Branch, ws.Path)
		}
		return nil
	},
}

var workspacesRemoveCmd = &cobra.Command{
	Use:   "rm <unit>",
	Short: "Remove a done unit's worktree",
	Long: `Remove a unit's worktree. The unit must be done (its branch is in the
target) and the worktree must have no uncommitted changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, logger, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		featureSlug, err := resolveFeature(eng)
		if err != nil {
			return err
		}
		if err := eng.DestroyWorkspace(cmd.Context(), featureSlug, args[0], flagDeleteBranch); err != nil {
			return err
		}
		cmd.Printf("Removed worktree of %s\n", args[0])
		return nil
	},
}
