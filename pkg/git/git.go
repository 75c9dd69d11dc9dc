// Package git wraps the repository operations the coordination engine
// needs. Read-only queries (current branch, branch existence, branch
// heads) go through go-git; worktree, branch, and merge manipulation
// shells out to the git CLI because go-git does not manage linked
// worktrees.
package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

var (
	// ErrNotRepository indicates the path is not inside a Git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrDetachedHead indicates HEAD does not point at a branch.
	ErrDetachedHead = errors.New("detached HEAD")

	// ErrBranchNotFound indicates a named branch does not exist locally.
	ErrBranchNotFound = errors.New("branch not found")
)

// Client provides Git access rooted at a single repository.
//
// All mutating operations run the git CLI in the repository root (or in
// a linked worktree when the operation targets one). Client is safe for
// concurrent use; git itself serializes index updates.
type Client struct {
	root   string
	repo   *gogit.Repository
	logger *zap.Logger
}

// Open opens the repository containing root.
func Open(root string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root %s: %w", root, err)
	}
	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
		}
		return nil, fmt.Errorf("opening repository %s: %w", abs, err)
	}
	return &Client{root: abs, repo: repo, logger: logger}, nil
}

// Root returns the absolute path the client was opened at.
func (c *Client) Root() string {
	return c.root
}

// CurrentBranch returns the branch HEAD points at in the main working
// tree. Returns ErrDetachedHead when HEAD is not on a branch.
func (c *Client) CurrentBranch() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name().Short(), nil
}

// BranchExists reports whether a local branch with the given name exists.
func (c *Client) BranchExists(name string) (bool, error) {
	_, err := c.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("resolving branch %s: %w", name, err)
}

// BranchHead returns the commit hash a local branch points at.
func (c *Client) BranchHead(name string) (string, error) {
	ref, err := c.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", fmt.Errorf("%w: %s", ErrBranchNotFound, name)
		}
		return "", fmt.Errorf("resolving branch %s: %w", name, err)
	}
	return ref.Hash().String(), nil
}

// Branches lists local branch names in sorted order.
func (c *Client) Branches() ([]string, error) {
	iter, err := c.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating branches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
