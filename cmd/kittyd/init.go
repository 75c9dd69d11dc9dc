package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/pkg/git"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

// sampleConfig is written on init so the knobs are discoverable.
const sampleConfig = `# kittyd configuration. Environment variables with the KITTY_ prefix
# override these values (KITTY_SERVER_PORT, KITTY_REPO_TRUNK, ...).

repo:
  trunk: main

locks:
  timeout: 5m
  sweep_interval: 10m

server:
  host: 127.0.0.1
  port: 9119

merge:
  delete_branches: false

observability:
  log_level: info
  log_format: console
`

// stateIgnore keeps worktrees and lock markers out of version control;
// records and config stay tracked.
const stateIgnore = `worktrees/
.locks/
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold scheduler state for a repository",
	Long: `Scaffold the scheduler's directories in the current git repository:

  .kittify/config.yaml   configuration (created only if missing)
  .kittify/.locks/       advisory lock markers
  .kittify/worktrees/    per-unit linked worktrees
  kitty-specs/           feature specs and work-package records

Existing files are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	client, err := git.Open(cwd, zap.NewNop())
	if err != nil {
		return err
	}
	root := client.Root()

	dirs := []string{
		filepath.Join(root, ".kittify"),
		filepath.Join(root, ".kittify", ".locks"),
		filepath.Join(root, ".kittify", "worktrees"),
		filepath.Join(root, "kitty-specs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	wrote, err := writeIfMissing(filepath.Join(root, ".kittify", "config.yaml"), sampleConfig, 0o600)
	if err != nil {
		return err
	}
	if _, err := writeIfMissing(filepath.Join(root, ".kittify", ".gitignore"), stateIgnore, 0o644); err != nil {
		return err
	}

	cmd.Printf("Initialized scheduler state in %s\n", filepath.Join(root, ".kittify"))
	if wrote {
		cmd.Println("Wrote .kittify/config.yaml; edit it or rely on KITTY_* environment variables")
	} else {
		cmd.Println("Kept existing .kittify/config.yaml")
	}
	return nil
}

func writeIfMissing(path, content string, mode os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
