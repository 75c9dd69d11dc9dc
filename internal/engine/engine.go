// Package engine wires the scheduler packages into the operations the
// CLI, HTTP API, and MCP server all share.
//
// The engine owns no state of its own: every operation re-reads the
// record store, so several kittyd processes can run the same engine
// against one repository and coordinate purely through locks and
// records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/internal/config"
	"github.com/bruj0/spec-kitty-sub000/pkg/feature"
	"github.com/bruj0/spec-kitty-sub000/pkg/git"
	"github.com/bruj0/spec-kitty-sub000/pkg/graph"
	"github.com/bruj0/spec-kitty-sub000/pkg/lane"
	"github.com/bruj0/spec-kitty-sub000/pkg/lock"
	"github.com/bruj0/spec-kitty-sub000/pkg/merge"
	"github.com/bruj0/spec-kitty-sub000/pkg/secrets"
	"github.com/bruj0/spec-kitty-sub000/pkg/workspace"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// locksDir holds the advisory lock markers, relative to the root.
const locksDir = ".kittify/.locks"

// Notifier observes everything the engine does. The event bus
// implements it; a nil notifier runs the engine silently.
type Notifier interface {
	lane.Notifier
	merge.Notifier
	lock.Notifier
}

// Config carries the engine's dependencies.
type Config struct {
	// Settings is the loaded kittyd configuration. Required.
	Settings *config.Config

	// Notifier observes transitions, merges, and reclamations.
	// Optional.
	Notifier Notifier

	Logger *zap.Logger
}

// Engine exposes the scheduler's command surface.
type Engine struct {
	root        string
	lockTimeout time.Duration
	store       *workunit.Store
	git         *git.Client
	features    *feature.Service
	locks       *lock.Manager
	workspaces  *workspace.Manager
	lanes       *lane.Machine
	merges      *merge.Orchestrator
	scrubber    *secrets.Scrubber
	logger      *zap.Logger
}

// New opens the repository and assembles the full service graph.
func New(cfg Config) (*Engine, error) {
	if cfg.Settings == nil {
		return nil, errors.New("settings are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := cfg.Settings

	client, err := git.Open(settings.Repo.Root, logger)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	root := client.Root()

	store := workunit.NewStore(root, logger)
	features := feature.NewService(root, settings.Repo.Trunk, logger)
	locks := lock.NewManager(filepath.Join(root, filepath.FromSlash(locksDir)), nil, logger)
	if cfg.Notifier != nil {
		locks.SetNotifier(cfg.Notifier)
	}

	workspaces, err := workspace.NewManager(workspace.Config{
		Store:       store,
		Git:         client,
		Features:    features,
		Locks:       locks,
		LockTimeout: settings.Locks.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building workspace manager: %w", err)
	}

	var laneNotifier lane.Notifier
	var mergeNotifier merge.Notifier
	if cfg.Notifier != nil {
		laneNotifier = cfg.Notifier
		mergeNotifier = cfg.Notifier
	}

	lanes, err := lane.NewMachine(lane.Config{
		Store:       store,
		Locks:       locks,
		Workspaces:  workspaces,
		Notifier:    laneNotifier,
		LockTimeout: settings.Locks.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building lane machine: %w", err)
	}

	merges, err := merge.NewOrchestrator(merge.Config{
		Store:          store,
		Git:            client,
		Workspaces:     workspaces,
		Features:       features,
		Locks:          locks,
		Notifier:       mergeNotifier,
		LockTimeout:    settings.Locks.Timeout,
		Actor:          settings.Merge.Actor,
		DeleteBranches: settings.Merge.DeleteBranches,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building merge orchestrator: %w", err)
	}

	scrubber, err := secrets.NewScrubber(secrets.ScrubberConfig{
		Root:          root,
		UserAllowlist: settings.Scrub.UserAllowlist,
		Disabled:      settings.Scrub.Disabled,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building scrubber: %w", err)
	}

	return &Engine{
		root:        root,
		lockTimeout: settings.Locks.Timeout,
		store:       store,
		git:         client,
		features:    features,
		locks:       locks,
		workspaces:  workspaces,
		lanes:       lanes,
		merges:      merges,
		scrubber:    scrubber,
		logger:      logger,
	}, nil
}

// Root returns the repository root the engine operates on.
func (e *Engine) Root() string { return e.root }

// SpecsDir returns the directory holding feature specs and task
// records.
func (e *Engine) SpecsDir() string { return e.features.SpecsDir() }

// Features lists the features found under the specs directory.
func (e *Engine) Features() ([]feature.Feature, error) { return e.features.List() }

// CurrentFeature resolves the feature owning the checked-out branch.
func (e *Engine) CurrentFeature() (feature.Feature, error) {
	branch, err := e.git.CurrentBranch()
	if err != nil {
		return feature.Feature{}, err
	}
	return e.features.FromBranch(branch)
}

// StartResult is the outcome of starting a unit.
type StartResult struct {
	Unit       *workunit.WorkUnit
	Workspace  *workspace.Workspace
	Resolution *workspace.Resolution

	// Ready reports whether every dependency was done at start time.
	// Starting an unready unit is legal (the workspace then bases off
	// the in-progress dependency branch); the flag is informational.
	Ready bool
}

// Start validates the dependency graph, gives the unit an isolated
// workspace, and moves it into lane doing.
//
// A non-empty base persists as the unit's explicit base override
// before resolution, so later calls see the same choice. Structural
// graph errors abort before anything is mutated.
func (e *Engine) Start(ctx context.Context, featureSlug, unitID, base, actor string) (*StartResult, error) {
	if _, err := e.features.Get(featureSlug); err != nil {
		return nil, err
	}

	units, err := e.store.LoadAll(featureSlug)
	if err != nil {
		return nil, err
	}
	resolver := graph.NewResolver(units)
	if err := resolver.Validate(); err != nil {
		return nil, err
	}

	u := resolver.Unit(unitID)
	if u == nil {
		return nil, &workunit.NotFoundError{Feature: featureSlug, UnitID: unitID}
	}
	if !lane.CanTransition(u.Lane, workunit.LaneInProgress) {
		return nil, &lane.InvalidTransitionError{UnitID: unitID, From: u.Lane, To: workunit.LaneInProgress}
	}

	if base != "" && base != u.BaseBranch {
		if err := e.setBaseOverride(ctx, featureSlug, unitID, base); err != nil {
			return nil, err
		}
	}

	if err := e.workspaces.EnsureTargetBranch(ctx, featureSlug); err != nil {
		return nil, err
	}

	resolution, err := e.workspaces.ResolveBase(ctx, featureSlug, unitID)
	if err != nil {
		return nil, err
	}

	ws, err := e.workspaces.CreateWorkspace(ctx, featureSlug, unitID, resolution.Base)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("started on base %s (%s)", resolution.Base, resolution.Source)
	updated, err := e.lanes.Transition(ctx, featureSlug, unitID, u.Lane, workunit.LaneInProgress, actor, note)
	if err != nil {
		return nil, err
	}

	ready := false
	for _, r := range resolver.ReadyUnits() {
		if r.ID == unitID {
			ready = true
			break
		}
	}

	return &StartResult{
		Unit:       updated,
		Workspace:  ws,
		Resolution: resolution,
		Ready:      ready,
	}, nil
}

// setBaseOverride persists an explicit base choice on the record.
func (e *Engine) setBaseOverride(ctx context.Context, featureSlug, unitID, base string) error {
	lease, err := e.locks.Acquire(ctx, lock.UnitResource(unitID), e.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release() }()

	u, err := e.store.Load(featureSlug, unitID)
	if err != nil {
		return err
	}
	u.BaseBranch = base
	return e.store.Save(featureSlug, u)
}

// Advance moves a unit to another lane. The note is scrubbed for
// secrets before it is persisted to history.
func (e *Engine) Advance(ctx context.Context, featureSlug, unitID string, to workunit.Lane, actor, note string) (*workunit.WorkUnit, error) {
	u, err := e.store.Load(featureSlug, unitID)
	if err != nil {
		return nil, err
	}
	if note == "" {
		note = fmt.Sprintf("moved to %s", to)
	}
	return e.lanes.Transition(ctx, featureSlug, unitID, u.Lane, to, actor, e.scrubber.ScrubNote(note))
}

// Preflight reports what would block a merge.
func (e *Engine) Preflight(ctx context.Context, featureSlug string) (*merge.PreflightReport, error) {
	return e.merges.Preflight(ctx, featureSlug)
}

// MergeDryRun forecasts a merge without mutating anything.
func (e *Engine) MergeDryRun(ctx context.Context, featureSlug string) (*merge.DryRunReport, error) {
	return e.merges.MergeDryRun(ctx, featureSlug)
}

// Merge recombines the feature's unit branches into its target.
func (e *Engine) Merge(ctx context.Context, featureSlug string, force bool) (*merge.Session, error) {
	return e.merges.Merge(ctx, featureSlug, force)
}

// Workspaces lists the feature's existing workspaces.
func (e *Engine) Workspaces(ctx context.Context, featureSlug string) ([]workspace.Workspace, error) {
	return e.workspaces.List(ctx, featureSlug)
}

// DestroyWorkspace removes a done unit's worktree.
func (e *Engine) DestroyWorkspace(ctx context.Context, featureSlug, unitID string, deleteBranch bool) error {
	return e.workspaces.DestroyWorkspace(ctx, featureSlug, unitID, deleteBranch)
}

// Locks lists the currently held lock markers.
func (e *Engine) Locks() ([]lock.Owner, error) { return e.locks.List() }

// SweepLocks reclaims markers from dead or expired owners and returns
// the reclaimed resource ids.
func (e *Engine) SweepLocks(ctx context.Context) ([]string, error) { return e.locks.Sweep(ctx) }

// RunLockSweeper reclaims stale locks on an interval until the context
// is cancelled. Serve mode runs it in the background.
func (e *Engine) RunLockSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.locks.Sweep(ctx); err != nil {
				e.logger.Warn("lock sweep failed", zap.Error(err))
			}
		}
	}
}
