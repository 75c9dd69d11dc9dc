// Package lane implements the work-package lifecycle state machine.
//
// Lane changes are the only sanctioned way to mutate a work-package
// record. Every transition re-reads the record under its unit lock, so
// concurrent callers always observe the persisted lane, never a cached
// one. History entries are advisory; the lane field is authoritative.
package lane

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/pkg/lock"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// allowedTransitions defines the permitted lane changes.
var allowedTransitions = map[workunit.Lane]map[workunit.Lane]struct{}{
	workunit.LanePlanned: {
		workunit.LaneInProgress: {},
	},
	workunit.LaneInProgress: {
		workunit.LaneInReview: {},
	},
	workunit.LaneInReview: {
		workunit.LaneDone:     {},
		workunit.LaneRejected: {},
	},
	workunit.LaneRejected: {
		workunit.LanePlanned:    {},
		workunit.LaneInProgress: {},
	},
	workunit.LaneDone: {},
}

// InvalidTransitionError reports a lane change the lifecycle does not
// allow. From is the record's current lane, To the attempted one.
type InvalidTransitionError struct {
	UnitID string
	From   workunit.Lane
	To     workunit.Lane
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("unit %s: cannot move %s -> %s", e.UnitID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DirtyWorkspaceError reports uncommitted changes blocking a transition
// into a lane that requires committed work.
type DirtyWorkspaceError struct {
	UnitID string
	Files  []string
}

func (e *DirtyWorkspaceError) Error() string {
	return fmt.Sprintf("unit %s: workspace has uncommitted changes: %s",
		e.UnitID, strings.Join(e.Files, ", "))
}

// WorkspaceChecker reports uncommitted modifications in a unit's
// isolated workspace. A unit without a workspace reports none.
type WorkspaceChecker interface {
	DirtyFiles(ctx context.Context, feature, unitID string) ([]string, error)
}

// Notifier receives successful lane transitions, for audit and event
// fan-out. Implementations must not block the transition path.
type Notifier interface {
	LaneChanged(ctx context.Context, feature string, unit *workunit.WorkUnit, from workunit.Lane)
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to workunit.Lane) bool {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Config carries the machine's dependencies.
type Config struct {
	// Store persists work-package records. Required.
	Store *workunit.Store

	// Locks serializes mutations per unit id. Required.
	Locks *lock.Manager

	// Workspaces guards transitions into InReview and Done against
	// uncommitted work. When nil the guard is skipped.
	Workspaces WorkspaceChecker

	// Notifier observes successful transitions. Optional.
	Notifier Notifier

	// LockTimeout bounds how long a transition waits for the unit
	// lock. Zero means lock.DefaultTimeout.
	LockTimeout time.Duration

	Logger *zap.Logger
}

// Machine applies lifecycle transitions to work-package records.
type Machine struct {
	store       *workunit.Store
	locks       *lock.Manager
	workspaces  WorkspaceChecker
	notifier    Notifier
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewMachine validates the config and returns a lane machine.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Locks == nil {
		return nil, errors.New("lock manager is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = lock.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Machine{
		store:       cfg.Store,
		locks:       cfg.Locks,
		workspaces:  cfg.Workspaces,
		notifier:    cfg.Notifier,
		lockTimeout: cfg.LockTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Transition moves a unit from one lane to another.
//
// The unit lock is held for the whole operation: the record is re-read
// under it, the caller's view of the current lane is verified against
// the persisted one, the change is checked against the lifecycle
// table, and transitions into InReview or Done additionally require a
// clean workspace. On success the history gains one entry and the new
// lane is persisted before the lock is released.
func (m *Machine) Transition(ctx context.Context, feature, unitID string, from, to workunit.Lane, actor, note string) (*workunit.WorkUnit, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", workunit.ErrUnknownLane, to)
	}

	lease, err := m.locks.Acquire(ctx, lock.UnitResource(unitID), m.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release() }()

	u, err := m.store.Load(feature, unitID)
	if err != nil {
		return nil, err
	}

	if u.Lane != from {
		return nil, &InvalidTransitionError{
			UnitID: unitID,
			From:   u.Lane,
			To:     to,
			Reason: fmt.Sprintf("caller expected lane %s", from),
		}
	}
	if !CanTransition(u.Lane, to) {
		return nil, &InvalidTransitionError{UnitID: unitID, From: u.Lane, To: to}
	}

	if to == workunit.LaneInReview || to == workunit.LaneDone {
		if err := m.requireCleanWorkspace(ctx, feature, unitID); err != nil {
			return nil, err
		}
	}

	prev := u.Lane
	u.AppendHistory(to, actor, note, time.Now())
	u.Lane = to
	if err := m.store.Save(feature, u); err != nil {
		return nil, err
	}

	m.logger.Info("lane transition",
		zap.String("feature", feature),
		zap.String("unit", unitID),
		zap.String("from", string(prev)),
		zap.String("to", string(to)),
		zap.String("actor", actor))

	if m.notifier != nil {
		m.notifier.LaneChanged(ctx, feature, u, prev)
	}
	return u, nil
}

func (m *Machine) requireCleanWorkspace(ctx context.Context, feature, unitID string) error {
	if m.workspaces == nil {
		return nil
	}
	files, err := m.workspaces.DirtyFiles(ctx, feature, unitID)
	if err != nil {
		return fmt.Errorf("checking workspace for %s: %w", unitID, err)
	}
	if len(files) > 0 {
		return &DirtyWorkspaceError{UnitID: unitID, Files: files}
	}
	return nil
}
