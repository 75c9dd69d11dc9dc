package lane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/pkg/lock"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

type fakeChecker struct {
	files []string
	calls int
}

func (f *fakeChecker) DirtyFiles(ctx context.Context, feature, unitID string) ([]string, error) {
	f.calls++
	return f.files, nil
}

type recordingNotifier struct {
	features []string
	froms    []workunit.Lane
}

func (r *recordingNotifier) LaneChanged(ctx context.Context, feature string, unit *workunit.WorkUnit, from workunit.Lane) {
	r.features = append(r.features, feature)
	r.froms = append(r.froms, from)
}

type fixture struct {
	machine  *Machine
	store    *workunit.Store
	locks    *lock.Manager
	checker  *fakeChecker
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	store := workunit.NewStore(root, zap.NewNop())
	locks := lock.NewManager(root+"/.kittify/.locks", nil, zap.NewNop())
	checker := &fakeChecker{}
	notifier := &recordingNotifier{}

	machine, err := NewMachine(Config{
		Store:       store,
		Locks:       locks,
		Workspaces:  checker,
		Notifier:    notifier,
		LockTimeout: 500 * time.Millisecond,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{machine: machine, store: store, locks: locks, checker: checker, notifier: notifier}
}

func (f *fixture) seed(t *testing.T, id string, l workunit.Lane) {
	t.Helper()
	u := &workunit.WorkUnit{
		ID:    id,
		Title: "Unit " + id,
		Lane:  l,
	}
	require.NoError(t, f.store.Save("user-auth", u))
}

func TestNewMachine_RequiredDeps(t *testing.T) {
	_, err := NewMachine(Config{})
	assert.ErrorContains(t, err, "store is required")

	_, err = NewMachine(Config{Store: workunit.NewStore(t.TempDir(), nil)})
	assert.ErrorContains(t, err, "lock manager is required")
}

func TestCanTransition_ExhaustivePairs(t *testing.T) {
	legal := map[[2]workunit.Lane]bool{
		{workunit.LanePlanned, workunit.LaneInProgress}:  true,
		{workunit.LaneInProgress, workunit.LaneInReview}: true,
		{workunit.LaneInReview, workunit.LaneDone}:       true,
		{workunit.LaneInReview, workunit.LaneRejected}:   true,
		{workunit.LaneRejected, workunit.LanePlanned}:    true,
		{workunit.LaneRejected, workunit.LaneInProgress}: true,
	}
	lanes := []workunit.Lane{
		workunit.LanePlanned,
		workunit.LaneInProgress,
		workunit.LaneInReview,
		workunit.LaneDone,
		workunit.LaneRejected,
	}
	for _, from := range lanes {
		for _, to := range lanes {
			want := legal[[2]workunit.Lane{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransition_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LanePlanned)

	u, err := f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LanePlanned, workunit.LaneInProgress, "agent-7", "claimed")
	require.NoError(t, err)
	assert.Equal(t, workunit.LaneInProgress, u.Lane)

	reloaded, err := f.store.Load("user-auth", "WP01")
	require.NoError(t, err)
	assert.Equal(t, workunit.LaneInProgress, reloaded.Lane)
	require.Len(t, reloaded.History, 1)
	assert.Equal(t, workunit.LaneInProgress, reloaded.History[0].Lane)
	assert.Equal(t, "agent-7", reloaded.History[0].Actor)
	assert.Equal(t, "claimed", reloaded.History[0].Action)

	// The unit lock is released on return.
	_, held, err := f.locks.Holder(lock.UnitResource("WP01"))
	require.NoError(t, err)
	assert.False(t, held)

	require.Len(t, f.notifier.froms, 1)
	assert.Equal(t, workunit.LanePlanned, f.notifier.froms[0])
	assert.Equal(t, "user-auth", f.notifier.features[0])
}

func TestTransition_StaleCallerView(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LaneInProgress)

	_, err := f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LanePlanned, workunit.LaneInProgress, "agent-7", "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, workunit.LaneInProgress, invalid.From)
	assert.Contains(t, invalid.Reason, "expected lane planned")
}

func TestTransition_IllegalPair(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LanePlanned)

	_, err := f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LanePlanned, workunit.LaneDone, "agent-7", "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, workunit.LanePlanned, invalid.From)
	assert.Equal(t, workunit.LaneDone, invalid.To)

	// Nothing was persisted.
	reloaded, err := f.store.Load("user-auth", "WP01")
	require.NoError(t, err)
	assert.Equal(t, workunit.LanePlanned, reloaded.Lane)
	assert.Empty(t, reloaded.History)
}

func TestTransition_UnknownLane(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LanePlanned)

	_, err := f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LanePlanned, workunit.Lane("shipped"), "agent-7", "")
	assert.ErrorIs(t, err, workunit.ErrUnknownLane)
}

func TestTransition_DirtyWorkspaceBlocksReview(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LaneInProgress)
	f.checker.files = []string{"auth.go", "auth_test.go"}

	_, err := f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LaneInProgress, workunit.LaneInReview, "agent-7", "")
	var dirty *DirtyWorkspaceError
	require.ErrorAs(t, err, &dirty)
	assert.Equal(t, []string{"auth.go", "auth_test.go"}, dirty.Files)

	reloaded, err := f.store.Load("user-auth", "WP01")
	require.NoError(t, err)
	assert.Equal(t, workunit.LaneInProgress, reloaded.Lane)
}

func TestTransition_CleanCheckSkippedForStart(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LanePlanned)
	f.checker.files = []string{"scratch.txt"}

	_, err := f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LanePlanned, workunit.LaneInProgress, "agent-7", "")
	require.NoError(t, err)
	assert.Zero(t, f.checker.calls)
}

func TestTransition_RejectedReopens(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LaneInReview)
	ctx := context.Background()

	_, err := f.machine.Transition(ctx, "user-auth", "WP01",
		workunit.LaneInReview, workunit.LaneRejected, "reviewer", "needs rework")
	require.NoError(t, err)

	u, err := f.machine.Transition(ctx, "user-auth", "WP01",
		workunit.LaneRejected, workunit.LaneInProgress, "agent-7", "resumed")
	require.NoError(t, err)
	assert.Equal(t, workunit.LaneInProgress, u.Lane)
	assert.Len(t, u.History, 2)
}

func TestTransition_LockContention(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "WP01", workunit.LanePlanned)

	lease, err := f.locks.Acquire(context.Background(), lock.UnitResource("WP01"), time.Second)
	require.NoError(t, err)
	defer lease.Release()

	_, err = f.machine.Transition(context.Background(), "user-auth", "WP01",
		workunit.LanePlanned, workunit.LaneInProgress, "agent-7", "")
	var timeout *lock.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "WP-WP01", timeout.ResourceID)
}
