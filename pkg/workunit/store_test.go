package workunit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecord(t *testing.T, root, feature, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, SpecsDirName, feature, "tasks")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func minimalRecord(id string, lane Lane, deps string) string {
	return "---\nwork_package_id: " + id + "\nlane: " + string(lane) + "\ndependencies: [" + deps + "]\n---\nbody\n"
}

func TestStore_Load(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	writeRecord(t, root, "user-auth", "WP01-login-form.md", minimalRecord("WP01", LanePlanned, ""))
	writeRecord(t, root, "user-auth", "WP10.md", minimalRecord("WP10", LaneDone, ""))

	u, err := store.Load("user-auth", "WP01")
	require.NoError(t, err)
	assert.Equal(t, "WP01", u.ID)
	assert.Equal(t, LanePlanned, u.Lane)
	assert.NotEmpty(t, u.Path)

	// Exact-name match without a slug suffix
	u, err = store.Load("user-auth", "WP10")
	require.NoError(t, err)
	assert.Equal(t, LaneDone, u.Lane)

	// WP1 must not match WP10.md
	_, err = store.Load("user-auth", "WP1")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "WP1", nf.UnitID)
	assert.Equal(t, "user-auth", nf.Feature)
}

func TestStore_Load_MissingFeature(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	_, err := store.Load("ghost", "WP01")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestStore_LoadAll_Ordering(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	writeRecord(t, root, "user-auth", "WP10-late.md", minimalRecord("WP10", LanePlanned, ""))
	writeRecord(t, root, "user-auth", "WP02-early.md", minimalRecord("WP02", LanePlanned, ""))
	writeRecord(t, root, "user-auth", "WP01-first.md", minimalRecord("WP01", LaneDone, ""))

	units, err := store.LoadAll("user-auth")
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "WP01", units[0].ID)
	assert.Equal(t, "WP02", units[1].ID)
	assert.Equal(t, "WP10", units[2].ID)
}

func TestStore_LoadAll_MalformedRecordFails(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	writeRecord(t, root, "user-auth", "WP01-good.md", minimalRecord("WP01", LanePlanned, ""))
	writeRecord(t, root, "user-auth", "WP02-bad.md", "no header here\n")

	_, err := store.LoadAll("user-auth")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestStore_Save(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	u := &WorkUnit{
		ID:    "WP05",
		Title: "Merge Orchestrator",
		Lane:  LanePlanned,
	}
	require.NoError(t, store.Save("user-auth", u))
	assert.Equal(t, filepath.Join(store.TasksDir("user-auth"), "WP05-merge-orchestrator.md"), u.Path)

	// Mutate and save again: same file, updated content
	u.Lane = LaneInProgress
	require.NoError(t, store.Save("user-auth", u))

	back, err := store.Load("user-auth", "WP05")
	require.NoError(t, err)
	assert.Equal(t, LaneInProgress, back.Lane)

	// No stray temp files left behind
	entries, err := os.ReadDir(store.TasksDir("user-auth"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"WP01", "WP02", -1},
		{"WP2", "WP10", -1},
		{"WP10", "WP2", 1},
		{"WP03", "WP03", 0},
		{"WP1", "WP01", 1}, // same number, lexicographic tie-break
		{"alpha", "beta", -1},
	}
	for _, tt := range tests {
		got := CompareIDs(tt.a, tt.b)
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%s vs %s", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%s vs %s", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%s vs %s", tt.a, tt.b)
		}
	}
}
