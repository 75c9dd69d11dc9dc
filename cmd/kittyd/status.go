package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [feature]",
	Short: "Show every work package's lane and the ready set",
	Long: `Show the lane of every work package in a feature, which units are
ready (all dependencies done, not yet started), and any structural
problem in the dependency graph.

Reading status takes no locks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

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

	st, err := eng.Status(cmd.Context(), featureSlug)
	if err != nil {
		return err
	}

	printStatus(cmd, st)
	return nil
}

func printStatus(cmd *cobra.Command, st *engine.FeatureStatus) {
	cmd.Printf("Feature: %s (target %s)\n", st.Feature, st.Target)
	if !st.TargetExists {
		cmd.Println("  target branch does not exist yet; it is created on first start")
	}
	if st.Problem != "" {
		cmd.Printf("  PROBLEM: %s\n", st.Problem)
	}
	cmd.Println()

	ready := map[string]bool{}
	for _, id := range st.Ready {
		ready[id] = true
	}
	for _, u := range st.Units {
		marks := ""
		if ready[u.ID] {
			marks += " (ready)"
		}
		if u.HasWorkspace {
			marks += " [worktree]"
		}
		if u.Owner != "" {
			marks += " @" + u.Owner
		}
		deps := ""
		if len(u.Dependencies) > 0 {
			deps = "  <- " + strings.Join(u.Dependencies, ", ")
		}
		cmd.Printf("  %-12s %-6s %s%s%s\n", u.Lane, u.ID, u.Title, deps, marks)
	}
}
