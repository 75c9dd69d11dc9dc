package git

import (
	"context"
	"strings"
)

// Worktree describes one entry from the repository's worktree list.
// Branch is empty for a detached checkout.
type Worktree struct {
	Path   string
	Head   string
	Branch string
}

// Worktrees lists the main working tree and all linked worktrees.
func (c *Client) Worktrees(ctx context.Context) ([]Worktree, error) {
	out, err := c.run(ctx, "", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktrees(out), nil
}

// parseWorktrees decodes `git worktree list --porcelain` output. Each
// stanza starts with a worktree line; stanzas are blank-line separated.
func parseWorktrees(out string) []Worktree {
	var trees []Worktree
	var current *Worktree
	flush := func() {
		if current != nil {
			trees = append(trees, *current)
			current = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
			// Stray attribute before any worktree line; skip.
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return trees
}
