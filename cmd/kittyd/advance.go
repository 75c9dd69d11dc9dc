package main

import (
	"github.com/spf13/cobra"

	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

var flagNote string

func init() {
	rootCmd.AddCommand(advanceCmd)
	advanceCmd.Flags().StringVar(&flagNote, "note", "", "history note for the transition (scrubbed for secrets)")
}

var advanceCmd = &cobra.Command{
	Use:   "advance <unit> <lane>",
	Short: "Move a work package to another lane",
	Long: `Move a work package to another lane.

Lanes: planned, doing, for_review, done, rejected. done is terminal;
rejected units can be reworked back through planned or doing.

Examples:
  # Submit WP03 for review
  kittyd advance WP03 for_review --note "ready for review"

  # Approve it
  kittyd advance WP03 done

  # Send it back
  kittyd advance WP03 rejected --note "tests missing"`,
	Args: cobra.ExactArgs(2),
	RunE: runAdvance,
}

func runAdvance(cmd *cobra.Command, args []string) error {
	to, err := workunit.ParseLane(args[1])
	if err != nil {
		return err
	}

	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	featureSlug, err := resolveFeature(eng)
	if err != nil {
		return err
	}

	u, err := eng.Advance(cmd.Context(), featureSlug, args[0], to, actor(), flagNote)
	if err != nil {
		return err
	}

	cmd.Printf("%s is now %s\n", u.ID, u.Lane)
	return nil
}
