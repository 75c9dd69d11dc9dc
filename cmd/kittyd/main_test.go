package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
)

func TestRootCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "start", "advance", "status", "merge", "serve", "mcp", "board", "locks", "workspaces"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestActorFlagOverridesSystemActor(t *testing.T) {
	orig := flagActor
	defer func() { flagActor = orig }()

	flagActor = "agent-3"
	assert.Equal(t, "agent-3", actor())

	flagActor = ""
	assert.NotEmpty(t, actor())
}

func TestInitScaffold(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	mustGit(t, root, "init")

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	defer func() { _ = os.Chdir(cwd) }()

	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	require.NoError(t, runInit(cmd, nil))

	for _, rel := range []string{".kittify/config.yaml", ".kittify/.gitignore"} {
		_, err := os.Stat(filepath.Join(root, rel))
		assert.NoError(t, err, rel)
	}
	for _, rel := range []string{".kittify/.locks", ".kittify/worktrees", "kitty-specs"} {
		info, err := os.Stat(filepath.Join(root, rel))
		require.NoError(t, err, rel)
		assert.True(t, info.IsDir(), rel)
	}
	assert.Contains(t, out.String(), "Initialized")

	// A second run keeps the existing config.
	before, err := os.ReadFile(filepath.Join(root, ".kittify", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, runInit(cmd, nil))
	after, err := os.ReadFile(filepath.Join(root, ".kittify", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPrintStatus(t *testing.T) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	printStatus(cmd, &engine.FeatureStatus{
		Feature:      "user-auth",
		Target:       "user-auth",
		TargetExists: true,
		Units: []engine.UnitStatus{
			{ID: "WP01", Title: "Schema", Lane: "done"},
			{ID: "WP02", Title: "API", Lane: "doing", Owner: "agent-1", Dependencies: []string{"WP01"}, HasWorkspace: true},
			{ID: "WP03", Title: "UI", Lane: "planned", Dependencies: []string{"WP02"}},
		},
		Ready: []string{"WP03"},
	})

	got := out.String()
	assert.Contains(t, got, "Feature: user-auth (target user-auth)")
	assert.Contains(t, got, "WP01")
	assert.Contains(t, got, "@agent-1")
	assert.Contains(t, got, "[worktree]")
	assert.Contains(t, got, "<- WP02")
}

func TestPrintStatusProblem(t *testing.T) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	printStatus(cmd, &engine.FeatureStatus{
		Feature: "user-auth",
		Target:  "user-auth",
		Problem: "dependency cycle: WP01 -> WP02 -> WP01",
	})

	assert.Contains(t, out.String(), "PROBLEM: dependency cycle")
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}
