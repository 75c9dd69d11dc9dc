package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ConflictError reports a merge that stopped on conflicting files. The
// working tree is left in the conflicted state for manual resolution.
type ConflictError struct {
	Dir    string
	Branch string
	Files  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merging %s in %s: conflicts in %s",
		e.Branch, e.Dir, strings.Join(e.Files, ", "))
}

// run executes a git command in dir and returns trimmed stdout.
func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	if dir == "" {
		dir = c.root
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("running git",
		zap.Strings("args", args),
		zap.String("dir", dir))

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CreateBranch creates a local branch at base without checking it out.
func (c *Client) CreateBranch(ctx context.Context, name, base string) error {
	if _, err := c.run(ctx, "", "branch", name, base); err != nil {
		return err
	}
	return nil
}

// DeleteBranch removes a local branch. With force set the branch is
// deleted even when unmerged.
func (c *Client) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := c.run(ctx, "", "branch", flag, name); err != nil {
		return err
	}
	return nil
}

// AddWorktree creates a linked worktree at path checked out on branch.
// When the branch does not exist yet it is created from base; an
// existing branch is checked out as-is and base is ignored.
func (c *Client) AddWorktree(ctx context.Context, path, branch, base string) error {
	exists, err := c.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		_, err = c.run(ctx, "", "worktree", "add", path, branch)
		return err
	}
	if base == "" {
		return fmt.Errorf("branch %s does not exist and no base was given", branch)
	}
	_, err = c.run(ctx, "", "worktree", "add", "-b", branch, path, base)
	return err
}

// RemoveWorktree detaches a linked worktree. With force set uncommitted
// changes in the worktree are discarded.
func (c *Client) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := c.run(ctx, "", args...); err != nil {
		return err
	}
	return nil
}

// PruneWorktrees drops worktree bookkeeping for directories that no
// longer exist on disk.
func (c *Client) PruneWorktrees(ctx context.Context) error {
	_, err := c.run(ctx, "", "worktree", "prune")
	return err
}

// CurrentBranchAt resolves the branch checked out in the working tree
// at dir. Returns ErrDetachedHead for a detached checkout.
func (c *Client) CurrentBranchAt(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", ErrDetachedHead
	}
	return out, nil
}

// DirtyFiles lists paths with uncommitted changes in the working tree
// at dir, in status --porcelain order.
func (c *Client) DirtyFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := c.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// IsClean reports whether the working tree at dir has no uncommitted
// changes.
func (c *Client) IsClean(ctx context.Context, dir string) (bool, error) {
	files, err := c.DirtyFiles(ctx, dir)
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

// Merge merges branch into the branch checked out at dir, always
// recording a merge commit. On conflict the working tree is left
// conflicted and a *ConflictError naming the files is returned.
func (c *Client) Merge(ctx context.Context, dir, branch, message string) error {
	_, err := c.run(ctx, dir, "merge", "--no-ff", "-m", message, branch)
	if err == nil {
		return nil
	}
	conflicted, listErr := c.ConflictedFiles(ctx, dir)
	if listErr == nil && len(conflicted) > 0 {
		return &ConflictError{Dir: dir, Branch: branch, Files: conflicted}
	}
	return err
}

// ConflictedFiles lists unmerged paths in the working tree at dir.
func (c *Client) ConflictedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := c.run(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// MergeBase returns the best common ancestor of two revisions.
func (c *Client) MergeBase(ctx context.Context, a, b string) (string, error) {
	return c.run(ctx, "", "merge-base", a, b)
}

// ChangedFiles lists paths that differ between base and ref.
func (c *Client) ChangedFiles(ctx context.Context, base, ref string) ([]string, error) {
	out, err := c.run(ctx, "", "diff", "--name-only", base, ref)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
