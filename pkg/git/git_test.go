package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// initRepo creates a real repository with one commit on main.
func initRepo(t *testing.T) *Client {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	mustGit(t, root, "init")
	mustGit(t, root, "config", "user.email", "tests@example.com")
	mustGit(t, root, "config", "user.name", "Kitty Tests")
	mustGit(t, root, "config", "commit.gpgsign", "false")
	writeFile(t, root, "README.md", "line one\nline two\nline three\n")
	mustGit(t, root, "add", ".")
	mustGit(t, root, "commit", "-m", "initial")
	mustGit(t, root, "branch", "-M", "main")

	client, err := Open(root, zap.NewNop())
	require.NoError(t, err)
	return client
}

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

// commitOnBranch creates a branch from main, commits one file on it,
// and returns to main.
func commitOnBranch(t *testing.T, c *Client, branch, file, content string) {
	t.Helper()
	mustGit(t, c.Root(), "checkout", "-b", branch, "main")
	writeFile(t, c.Root(), file, content)
	mustGit(t, c.Root(), "add", ".")
	mustGit(t, c.Root(), "commit", "-m", "change "+file)
	mustGit(t, c.Root(), "checkout", "main")
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir(), zap.NewNop())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestCurrentBranch(t *testing.T) {
	c := initRepo(t)
	branch, err := c.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestBranches(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	require.NoError(t, c.CreateBranch(ctx, "user-auth-WP01", "main"))

	exists, err := c.BranchExists("user-auth-WP01")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.BranchExists("no-such-branch")
	require.NoError(t, err)
	assert.False(t, exists)

	head, err := c.BranchHead("user-auth-WP01")
	require.NoError(t, err)
	assert.Len(t, head, 40)

	_, err = c.BranchHead("no-such-branch")
	assert.ErrorIs(t, err, ErrBranchNotFound)

	names, err := c.Branches()
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "user-auth-WP01"}, names)
}

func TestAddWorktree(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	path := filepath.Join(c.Root(), ".kittify", "worktrees", "user-auth-WP01")

	require.NoError(t, c.AddWorktree(ctx, path, "user-auth-WP01", "main"))

	branch := mustGit(t, path, "rev-parse", "--abbrev-ref", "HEAD")
	assert.Equal(t, "user-auth-WP01", branch)

	trees, err := c.Worktrees(ctx)
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Equal(t, "user-auth-WP01", trees[1].Branch)

	// A second worktree on an existing branch needs no base.
	other := filepath.Join(c.Root(), ".kittify", "worktrees", "other")
	require.NoError(t, c.CreateBranch(ctx, "user-auth-WP02", "main"))
	require.NoError(t, c.AddWorktree(ctx, other, "user-auth-WP02", ""))
}

func TestAddWorktree_MissingBase(t *testing.T) {
	c := initRepo(t)
	err := c.AddWorktree(context.Background(), filepath.Join(c.Root(), "wt"), "absent", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no base was given")
}

func TestRemoveWorktree(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	path := filepath.Join(c.Root(), ".kittify", "worktrees", "user-auth-WP01")
	require.NoError(t, c.AddWorktree(ctx, path, "user-auth-WP01", "main"))

	require.NoError(t, c.RemoveWorktree(ctx, path, false))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDirtyFiles(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()

	clean, err := c.IsClean(ctx, "")
	require.NoError(t, err)
	assert.True(t, clean)

	writeFile(t, c.Root(), "scratch.txt", "wip\n")
	files, err := c.DirtyFiles(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"scratch.txt"}, files)

	clean, err = c.IsClean(ctx, "")
	require.NoError(t, err)
	assert.False(t, clean)
}

func TestMerge(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	commitOnBranch(t, c, "user-auth-WP01", "auth.go", "package auth\n")

	require.NoError(t, c.Merge(ctx, "", "user-auth-WP01", "merge WP01"))
	assert.FileExists(t, filepath.Join(c.Root(), "auth.go"))

	// --no-ff always records a merge commit.
	parents := mustGit(t, c.Root(), "rev-list", "--parents", "-n", "1", "HEAD")
	assert.Len(t, strings.Fields(parents), 3)
}

func TestMerge_Conflict(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	commitOnBranch(t, c, "user-auth-WP01", "README.md", "line one\nfrom WP01\nline three\n")
	commitOnBranch(t, c, "user-auth-WP02", "README.md", "line one\nfrom WP02\nline three\n")

	require.NoError(t, c.Merge(ctx, "", "user-auth-WP01", "merge WP01"))

	err := c.Merge(ctx, "", "user-auth-WP02", "merge WP02")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"README.md"}, conflict.Files)
	assert.Contains(t, conflict.Error(), "README.md")

	// The tree is left conflicted for manual resolution.
	conflicted, listErr := c.ConflictedFiles(ctx, "")
	require.NoError(t, listErr)
	assert.Equal(t, []string{"README.md"}, conflicted)
}

func TestMergeBaseAndChangedFiles(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	mainHead, err := c.BranchHead("main")
	require.NoError(t, err)
	commitOnBranch(t, c, "user-auth-WP01", "auth.go", "package auth\n")

	base, err := c.MergeBase(ctx, "main", "user-auth-WP01")
	require.NoError(t, err)
	assert.Equal(t, mainHead, base)

	files, err := c.ChangedFiles(ctx, base, "user-auth-WP01")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth.go"}, files)
}

func TestDiffHunks(t *testing.T) {
	c := initRepo(t)
	ctx := context.Background()
	commitOnBranch(t, c, "user-auth-WP01", "README.md", "line one\nedited\nline three\n")

	hunks, err := c.DiffHunks(ctx, "main", "user-auth-WP01", "README.md")
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, Hunk{Start: 2, Lines: 1}, hunks[0])
}

func TestParseHunks(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/f b/f",
		"--- a/f",
		"+++ b/f",
		"@@ -2,3 +2,4 @@ func main() {",
		"@@ -10 +11 @@",
		"@@ -20,0 +22,2 @@",
	}, "\n")

	hunks, err := parseHunks(diff)
	require.NoError(t, err)
	assert.Equal(t, []Hunk{
		{Start: 2, Lines: 3},
		{Start: 10, Lines: 1},
		{Start: 20, Lines: 0},
	}, hunks)
}

func TestHunkOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Hunk
		want bool
	}{
		{"identical", Hunk{2, 3}, Hunk{2, 3}, true},
		{"adjacent", Hunk{2, 3}, Hunk{5, 1}, false},
		{"contained", Hunk{1, 10}, Hunk{4, 2}, true},
		{"disjoint", Hunk{1, 2}, Hunk{10, 2}, false},
		{"insertion inside", Hunk{3, 0}, Hunk{2, 4}, true},
		{"insertion outside", Hunk{8, 0}, Hunk{2, 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestParseWorktrees(t *testing.T) {
	out := strings.Join([]string{
		"worktree /repo",
		"HEAD 1111111111111111111111111111111111111111",
		"branch refs/heads/main",
		"",
		"worktree /repo/.kittify/worktrees/user-auth-WP01",
		"HEAD 2222222222222222222222222222222222222222",
		"branch refs/heads/user-auth-WP01",
		"",
		"worktree /repo/.kittify/worktrees/detached",
		"HEAD 3333333333333333333333333333333333333333",
		"detached",
	}, "\n")

	trees := parseWorktrees(out)
	require.Len(t, trees, 3)
	assert.Equal(t, Worktree{
		Path:   "/repo",
		Head:   "1111111111111111111111111111111111111111",
		Branch: "main",
	}, trees[0])
	assert.Equal(t, "user-auth-WP01", trees[1].Branch)
	assert.Empty(t, trees[2].Branch)
}
