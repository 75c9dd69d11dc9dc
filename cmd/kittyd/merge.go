package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagDryRun    bool
	flagForce     bool
	flagPreflight bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "forecast the merge without mutating anything")
	mergeCmd.Flags().BoolVar(&flagForce, "force", false, "merge multi-parent units directly instead of requiring combined dependency branches")
	mergeCmd.Flags().BoolVar(&flagPreflight, "preflight", false, "only report what would block a merge")
}

var mergeCmd = &cobra.Command{
	Use:   "merge [feature]",
	Short: "Merge done work packages into the feature's target branch",
	Long: `Merge every done work package's branch into the feature's target
branch, in dependency order. A conflict halts the merge: already-merged
units stay merged, the conflicting worktree is left in place for manual
resolution, and the rest are untouched.

--dry-run forecasts the merge order and per-file conflict risk without
touching anything.

Examples:
  kittyd merge user-auth --dry-run
  kittyd merge user-auth
  kittyd merge user-auth --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMerge,
}

func runMerge(cmd *cobra.Command, args []string) error {
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

	if flagPreflight {
		report, err := eng.Preflight(cmd.Context(), featureSlug)
		if err != nil {
			return err
		}
		if report.Clean() {
			cmd.Printf("Nothing blocks merging into %s\n", report.Target)
		}
		if !report.TargetExists {
			cmd.Printf("Target branch %s does not exist\n", report.Target)
		}
		for unitID, files := range report.Dirty {
			cmd.Printf("  %s has uncommitted changes: %s\n", unitID, strings.Join(files, ", "))
		}
		for _, a := range report.Advisories {
			cmd.Printf("  advisory for %s: %s\n", a.UnitID, a.Note)
		}
		return nil
	}

	if flagDryRun {
		report, err := eng.MergeDryRun(cmd.Context(), featureSlug)
		if err != nil {
			return err
		}
		cmd.Printf("Would merge into %s: %s\n", report.Target, strings.Join(report.Order, ", "))
		if len(report.Skipped) > 0 {
			cmd.Printf("Skipped (no branch): %s\n", strings.Join(report.Skipped, ", "))
		}
		for _, f := range report.Forecasts {
			cmd.Printf("  %s: %s (%s)\n", f.File, f.Class, strings.Join(f.UnitIDs, ", "))
		}
		if n := report.ManualCount(); n > 0 {
			cmd.Printf("%d file(s) predicted to need manual resolution\n", n)
		}
		return nil
	}

	session, err := eng.Merge(cmd.Context(), featureSlug, flagForce)
	if err != nil {
		return err
	}

	merged := session.Merged()
	cmd.Printf("Merged %d of %d unit(s) into %s\n", len(merged), len(session.Order), session.Target)
	for _, id := range merged {
		cmd.Printf("  merged  %s\n", id)
	}
	if session.Conflict != nil {
		cmd.Printf("  HALTED on %s: conflicts in %s\n",
			session.Conflict.UnitID, strings.Join(session.Conflict.Files, ", "))
		cmd.Printf("  resolve in %s, then merge again\n", session.Conflict.Dir)
		for _, id := range session.Pending() {
			cmd.Printf("  pending %s\n", id)
		}
	}
	return nil
}
