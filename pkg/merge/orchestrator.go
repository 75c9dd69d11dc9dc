// Package merge recombines a feature's unit branches into its target
// branch in dependency order, forecasting conflicts before touching
// anything and halting on the first real one.
//
// A halt is not a rollback: units merged before the conflict stand, the
// merge working tree is left in the conflicted state for manual
// resolution, and the session reports exactly which units made it.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/pkg/feature"
	"github.com/bruj0/spec-kitty-sub000/pkg/git"
	"github.com/bruj0/spec-kitty-sub000/pkg/graph"
	"github.com/bruj0/spec-kitty-sub000/pkg/lock"
	"github.com/bruj0/spec-kitty-sub000/pkg/workspace"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// mergeDir holds the transient working trees merges run in, one per
// feature, separate from unit workspaces.
const mergeDir = ".kittify/merge"

// Notifier receives completed merge sessions, successful or halted.
type Notifier interface {
	MergeCompleted(ctx context.Context, session *Session)
}

// Config carries the orchestrator's dependencies.
type Config struct {
	Store      *workunit.Store    // required
	Git        *git.Client        // required
	Workspaces *workspace.Manager // required
	Features   *feature.Service   // required
	Locks      *lock.Manager      // required

	// Notifier observes completed sessions. Optional.
	Notifier Notifier

	// LockTimeout bounds waiting for the feature lock and the per-unit
	// history locks. Zero means lock.DefaultTimeout.
	LockTimeout time.Duration

	// Actor names the orchestrator in unit history entries.
	Actor string

	// DeleteBranches removes unit branches together with their
	// worktrees after a fully successful merge.
	DeleteBranches bool

	Logger *zap.Logger
}

// Orchestrator merges unit branches into feature targets.
type Orchestrator struct {
	store          *workunit.Store
	git            *git.Client
	workspaces     *workspace.Manager
	features       *feature.Service
	locks          *lock.Manager
	notifier       Notifier
	lockTimeout    time.Duration
	actor          string
	deleteBranches bool
	logger         *zap.Logger
}

// NewOrchestrator validates the config and returns an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Git == nil {
		return nil, errors.New("git client is required")
	}
	if cfg.Workspaces == nil {
		return nil, errors.New("workspace manager is required")
	}
	if cfg.Features == nil {
		return nil, errors.New("feature service is required")
	}
	if cfg.Locks == nil {
		return nil, errors.New("lock manager is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = lock.DefaultTimeout
	}
	if cfg.Actor == "" {
		cfg.Actor = "kittyd"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		store:          cfg.Store,
		git:            cfg.Git,
		workspaces:     cfg.Workspaces,
		features:       cfg.Features,
		locks:          cfg.Locks,
		notifier:       cfg.Notifier,
		lockTimeout:    cfg.LockTimeout,
		actor:          cfg.Actor,
		deleteBranches: cfg.DeleteBranches,
		logger:         cfg.Logger,
	}, nil
}

// Preflight verifies a feature is in shape to merge: target branch
// reachable, no workspace with uncommitted changes, and dependency
// progress surfaced for every multi-parent unit about to merge. The
// report never blocks anything by itself.
func (o *Orchestrator) Preflight(ctx context.Context, featureSlug string) (*PreflightReport, error) {
	units, err := o.store.LoadAll(featureSlug)
	if err != nil {
		return nil, err
	}
	resolver := graph.NewResolver(units)
	if err := resolver.Validate(); err != nil {
		return nil, err
	}

	target := feature.TargetBranch(featureSlug)
	targetExists, err := o.git.BranchExists(target)
	if err != nil {
		return nil, err
	}

	report := &PreflightReport{
		Feature:      featureSlug,
		Target:       target,
		TargetExists: targetExists,
		Dirty:        make(map[string][]string),
	}

	for _, u := range units {
		files, err := o.workspaces.DirtyFiles(ctx, featureSlug, u.ID)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			report.Dirty[u.ID] = files
		}

		if len(u.Dependencies) < 2 {
			continue
		}
		hasBranch, err := o.git.BranchExists(feature.UnitBranch(featureSlug, u.ID))
		if err != nil {
			return nil, err
		}
		if !hasBranch {
			continue
		}
		class, err := resolver.ClassifyMultiParent(u.ID)
		if err != nil {
			return nil, err
		}
		report.Advisories = append(report.Advisories, Advisory{
			UnitID: u.ID,
			Class:  class,
			Note:   advisoryNote(class),
		})
	}
	return report, nil
}

func advisoryNote(class graph.ParentClass) string {
	switch class {
	case graph.ParentsAllDone:
		return "all dependencies done; a plain merge is refused without force until their branches are combined into the target"
	case graph.ParentsMixed:
		return "dependencies partially done; in-progress dependency branches merge before this unit"
	default:
		return "no dependency done yet"
	}
}

// Merge recombines every started unit branch of a feature into its
// target branch, strictly sequentially and in dependency order, under
// the feature-wide lock.
//
// The first conflicting unit halts the sequence: its files stay
// conflicted in the merge working tree, already-merged units stand, and
// the session reports merged versus pending. No rollback happens. With
// force set, multi-parent units whose dependencies are all done merge
// directly from their branches; without it such units are rejected
// while their dependency branches are still uncombined.
func (o *Orchestrator) Merge(ctx context.Context, featureSlug string, force bool) (*Session, error) {
	lease, err := o.locks.Acquire(ctx, lock.FeatureResource(featureSlug), o.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release() }()

	units, err := o.store.LoadAll(featureSlug)
	if err != nil {
		return nil, err
	}
	resolver := graph.NewResolver(units)
	if err := resolver.Validate(); err != nil {
		return nil, err
	}

	target := feature.TargetBranch(featureSlug)
	targetExists, err := o.git.BranchExists(target)
	if err != nil {
		return nil, err
	}
	if !targetExists {
		return nil, fmt.Errorf("target branch %s does not exist", target)
	}

	session := &Session{
		Feature: featureSlug,
		Target:  target,
		Results: make(map[string]UnitResult, len(units)),
	}

	inSet := make(map[string]bool, len(units))
	var candidates []string
	for _, u := range units {
		hasBranch, err := o.git.BranchExists(feature.UnitBranch(featureSlug, u.ID))
		if err != nil {
			return nil, err
		}
		if hasBranch {
			candidates = append(candidates, u.ID)
			inSet[u.ID] = true
		} else {
			session.Results[u.ID] = ResultSkipped
		}
	}

	order, err := resolver.MergeOrder(candidates)
	if err != nil {
		return nil, err
	}
	session.Order = order
	for _, id := range order {
		session.Results[id] = ResultPending
	}

	if len(order) == 0 {
		o.logger.Info("nothing to merge", zap.String("feature", featureSlug))
		if o.notifier != nil {
			o.notifier.MergeCompleted(ctx, session)
		}
		return session, nil
	}

	if !force {
		if err := o.requireCombinedParents(resolver, order, inSet); err != nil {
			return nil, err
		}
	}

	dir, cleanup, err := o.mergeContext(ctx, featureSlug, target)
	if err != nil {
		return nil, err
	}
	keepContext := false
	defer func() {
		if !keepContext {
			cleanup()
		}
	}()

	for _, id := range order {
		branch := feature.UnitBranch(featureSlug, id)
		mergeErr := o.git.Merge(ctx, dir, branch, fmt.Sprintf("kittyd: merge %s", branch))
		if mergeErr == nil {
			session.Results[id] = ResultMerged
			o.recordHistory(ctx, featureSlug, id, "merged into "+target)
			o.logger.Info("merged unit branch",
				zap.String("feature", featureSlug),
				zap.String("unit", id),
				zap.String("target", target))
			continue
		}

		var conflict *git.ConflictError
		if errors.As(mergeErr, &conflict) {
			session.Results[id] = ResultConflict
			session.Conflict = &ConflictDetail{
				UnitID: id,
				Branch: branch,
				Files:  conflict.Files,
				Dir:    dir,
			}
			keepContext = true
			o.recordHistory(ctx, featureSlug, id, "merge conflict: "+strings.Join(conflict.Files, ", "))
			o.logger.Warn("merge halted on conflict",
				zap.String("feature", featureSlug),
				zap.String("unit", id),
				zap.Strings("files", conflict.Files),
				zap.String("resolve_in", dir))
			break
		}
		return nil, mergeErr
	}

	if session.Conflict == nil {
		o.cleanupWorkspaces(ctx, featureSlug, order)
	}

	if o.notifier != nil {
		o.notifier.MergeCompleted(ctx, session)
	}
	return session, nil
}

// requireCombinedParents rejects all-done multi-parent units whose
// dependency branches are still waiting to be combined into the target.
func (o *Orchestrator) requireCombinedParents(resolver *graph.Resolver, order []string, inSet map[string]bool) error {
	for _, id := range order {
		u := resolver.Unit(id)
		if len(u.Dependencies) < 2 {
			continue
		}
		class, err := resolver.ClassifyMultiParent(id)
		if err != nil {
			return err
		}
		if class != graph.ParentsAllDone {
			continue
		}
		for _, dep := range u.Dependencies {
			if inSet[dep] {
				return &ForceRequiredError{
					UnitID:       id,
					Dependencies: append([]string(nil), u.Dependencies...),
				}
			}
		}
	}
	return nil
}

// mergeContext returns the working tree merges run in: the repository
// root when it already has the target checked out, otherwise a
// dedicated worktree under .kittify/merge/ that cleanup removes.
func (o *Orchestrator) mergeContext(ctx context.Context, featureSlug, target string) (string, func(), error) {
	current, err := o.git.CurrentBranch()
	if err == nil && current == target {
		return o.git.Root(), func() {}, nil
	}

	dir := filepath.Join(o.git.Root(), filepath.FromSlash(mergeDir), featureSlug)
	if _, err := os.Stat(dir); err == nil {
		if branch, err := o.git.CurrentBranchAt(ctx, dir); err != nil || branch != target {
			return "", nil, fmt.Errorf("leftover merge worktree %s is not on %s; remove it first", dir, target)
		}
	} else if !os.IsNotExist(err) {
		return "", nil, fmt.Errorf("checking merge worktree %s: %w", dir, err)
	} else {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", nil, fmt.Errorf("creating merge directory: %w", err)
		}
		if err := o.git.AddWorktree(ctx, dir, target, ""); err != nil {
			return "", nil, fmt.Errorf("creating merge worktree: %w", err)
		}
	}

	cleanup := func() {
		if err := o.git.RemoveWorktree(ctx, dir, true); err != nil {
			o.logger.Warn("removing merge worktree",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}
	return dir, cleanup, nil
}

// cleanupWorkspaces destroys the workspaces of merged units that have
// reached lane done. Failures are logged, never fatal: the merge itself
// already succeeded.
func (o *Orchestrator) cleanupWorkspaces(ctx context.Context, featureSlug string, order []string) {
	for _, id := range order {
		err := o.workspaces.DestroyWorkspace(ctx, featureSlug, id, o.deleteBranches)
		if err == nil || errors.Is(err, workspace.ErrNotDone) {
			continue
		}
		o.logger.Warn("workspace cleanup after merge",
			zap.String("feature", featureSlug),
			zap.String("unit", id),
			zap.Error(err))
	}
}

// recordHistory appends a merge outcome to a unit's history under its
// lock. History is advisory; failures are logged and swallowed.
func (o *Orchestrator) recordHistory(ctx context.Context, featureSlug, unitID, action string) {
	lease, err := o.locks.Acquire(ctx, lock.UnitResource(unitID), o.lockTimeout)
	if err != nil {
		o.logger.Warn("recording merge history",
			zap.String("unit", unitID),
			zap.Error(err))
		return
	}
	defer func() { _ = lease.Release() }()

	u, err := o.store.Load(featureSlug, unitID)
	if err != nil {
		o.logger.Warn("recording merge history",
			zap.String("unit", unitID),
			zap.Error(err))
		return
	}
	u.AppendHistory(u.Lane, o.actor, action, time.Now())
	if err := o.store.Save(featureSlug, u); err != nil {
		o.logger.Warn("recording merge history",
			zap.String("unit", unitID),
			zap.Error(err))
	}
}
