// Package workspace manages the isolated execution context of each work
// package: a dedicated branch and a linked working tree, based on the
// right parent depending on how far the unit's dependencies have
// progressed.
package workspace

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
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// worktreesDir holds the linked working trees, one per unit branch.
const worktreesDir = ".kittify/worktrees"

// Workspace describes one unit's isolated execution context.
type Workspace struct {
	UnitID  string
	Feature string
	Branch  string
	Path    string

	// Reused is set when CreateWorkspace found the worktree already in
	// place instead of creating it.
	Reused bool
}

// BaseSource says where a resolved base came from.
type BaseSource int

const (
	// BaseExplicit: the unit's explicit base override.
	BaseExplicit BaseSource = iota
	// BaseTarget: the feature's target branch.
	BaseTarget
	// BaseDependency: the branch of the unit's single dependency.
	BaseDependency
)

func (s BaseSource) String() string {
	switch s {
	case BaseExplicit:
		return "explicit"
	case BaseTarget:
		return "target"
	case BaseDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of base resolution for one unit.
type Resolution struct {
	UnitID string
	Base   string
	Source BaseSource

	// MultiParent marks units with two or more dependencies; Class and
	// Advisory then carry the dependency-progress suggestion. The
	// suggestion is never acted on automatically.
	MultiParent bool
	Class       graph.ParentClass
	Advisory    string
}

// Config carries the manager's dependencies.
type Config struct {
	Store    *workunit.Store  // required
	Git      *git.Client      // required
	Features *feature.Service // required
	Locks    *lock.Manager    // required

	// LockTimeout bounds waiting for a unit lock during create/destroy.
	// Zero means lock.DefaultTimeout.
	LockTimeout time.Duration

	Logger *zap.Logger
}

// Manager creates, inspects, and destroys unit workspaces.
type Manager struct {
	store       *workunit.Store
	git         *git.Client
	features    *feature.Service
	locks       *lock.Manager
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewManager validates the config and returns a workspace manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Git == nil {
		return nil, errors.New("git client is required")
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
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		store:       cfg.Store,
		git:         cfg.Git,
		features:    cfg.Features,
		locks:       cfg.Locks,
		lockTimeout: cfg.LockTimeout,
		logger:      cfg.Logger,
	}, nil
}

// WorktreePath returns the working tree location for a unit, whether or
// not it exists yet.
func (m *Manager) WorktreePath(featureSlug, unitID string) string {
	return filepath.Join(m.git.Root(), filepath.FromSlash(worktreesDir),
		feature.UnitBranch(featureSlug, unitID))
}

// ResolveBase decides which branch a unit's workspace should start
// from.
//
// An explicit override on the record wins but must exist. Otherwise a
// unit with no dependencies starts from the target branch; a unit with
// one dependency starts from the target when that dependency is done
// (its work is already integrated there) and from the dependency's own
// branch while it is still underway. Units with several dependencies
// never get an auto-chosen base.
func (m *Manager) ResolveBase(ctx context.Context, featureSlug, unitID string) (*Resolution, error) {
	units, err := m.store.LoadAll(featureSlug)
	if err != nil {
		return nil, err
	}
	r := graph.NewResolver(units)
	u := r.Unit(unitID)
	if u == nil {
		return nil, &workunit.NotFoundError{Feature: featureSlug, UnitID: unitID}
	}

	if u.BaseBranch != "" {
		exists, err := m.git.BranchExists(u.BaseBranch)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &WorkspaceNotFoundError{UnitID: unitID, Base: u.BaseBranch, Lane: u.Lane}
		}
		res := &Resolution{UnitID: unitID, Base: u.BaseBranch, Source: BaseExplicit}
		m.annotateMultiParent(r, u, res)
		return res, nil
	}

	target := feature.TargetBranch(featureSlug)
	switch len(u.Dependencies) {
	case 0:
		return &Resolution{UnitID: unitID, Base: target, Source: BaseTarget}, nil
	case 1:
		dep := r.Unit(u.Dependencies[0])
		if dep == nil {
			return nil, &graph.DanglingReferenceError{UnitID: unitID, MissingID: u.Dependencies[0]}
		}
		if dep.Lane == workunit.LaneDone {
			return &Resolution{UnitID: unitID, Base: target, Source: BaseTarget}, nil
		}
		return &Resolution{
			UnitID: unitID,
			Base:   feature.UnitBranch(featureSlug, dep.ID),
			Source: BaseDependency,
		}, nil
	default:
		class, err := r.ClassifyMultiParent(unitID)
		if err != nil {
			return nil, err
		}
		return nil, &MultiParentBaseError{
			UnitID:       unitID,
			Dependencies: append([]string(nil), u.Dependencies...),
			Class:        class,
		}
	}
}

func (m *Manager) annotateMultiParent(r *graph.Resolver, u *workunit.WorkUnit, res *Resolution) {
	if len(u.Dependencies) < 2 {
		return
	}
	class, err := r.ClassifyMultiParent(u.ID)
	if err != nil {
		return
	}
	res.MultiParent = true
	res.Class = class
	res.Advisory = advisoryFor(class)
}

func advisoryFor(class graph.ParentClass) string {
	switch class {
	case graph.ParentsAllDone:
		return "all dependencies are done; pre-merge them into the target before branching to reduce conflict risk"
	case graph.ParentsMixed:
		return "dependencies are partially done; in-progress dependency branches may be combined directly"
	default:
		return "no dependency is done yet"
	}
}

// EnsureTargetBranch creates the feature's target branch from the trunk
// if it does not exist. A second call is a no-op.
func (m *Manager) EnsureTargetBranch(ctx context.Context, featureSlug string) error {
	target := feature.TargetBranch(featureSlug)
	exists, err := m.git.BranchExists(target)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	trunk := m.features.Trunk()
	trunkExists, err := m.git.BranchExists(trunk)
	if err != nil {
		return err
	}
	if !trunkExists {
		return &BaseUnavailableError{Base: trunk}
	}
	if err := m.git.CreateBranch(ctx, target, trunk); err != nil {
		return fmt.Errorf("creating target branch %s: %w", target, err)
	}
	m.logger.Info("created target branch",
		zap.String("feature", featureSlug),
		zap.String("branch", target),
		zap.String("trunk", trunk))
	return nil
}

// CreateWorkspace sets up a unit's branch and working tree from base.
// An empty base is resolved via ResolveBase first. An already-present
// worktree on the unit's branch is returned as reused rather than
// recreated.
func (m *Manager) CreateWorkspace(ctx context.Context, featureSlug, unitID, base string) (*Workspace, error) {
	lease, err := m.locks.Acquire(ctx, lock.UnitResource(unitID), m.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release() }()

	if _, err := m.store.Load(featureSlug, unitID); err != nil {
		return nil, err
	}

	if base == "" {
		res, err := m.ResolveBase(ctx, featureSlug, unitID)
		if err != nil {
			return nil, err
		}
		base = res.Base
	}

	branch := feature.UnitBranch(featureSlug, unitID)
	path := m.WorktreePath(featureSlug, unitID)
	ws := &Workspace{UnitID: unitID, Feature: featureSlug, Branch: branch, Path: path}

	if _, err := os.Stat(path); err == nil {
		if err := m.verifyWorktreeBranch(ctx, path, branch); err != nil {
			return nil, err
		}
		ws.Reused = true
		return ws, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking worktree path %s: %w", path, err)
	}

	branchExists, err := m.git.BranchExists(branch)
	if err != nil {
		return nil, err
	}
	if !branchExists {
		baseExists, err := m.git.BranchExists(base)
		if err != nil {
			return nil, err
		}
		if !baseExists {
			return nil, &BaseUnavailableError{UnitID: unitID, Base: base}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating worktrees directory: %w", err)
	}
	if err := m.git.AddWorktree(ctx, path, branch, base); err != nil {
		return nil, fmt.Errorf("creating workspace for %s: %w", unitID, err)
	}

	m.logger.Info("created workspace",
		zap.String("feature", featureSlug),
		zap.String("unit", unitID),
		zap.String("branch", branch),
		zap.String("base", base))
	return ws, nil
}

// verifyWorktreeBranch confirms an existing worktree path is checked
// out on the unit's branch before it is reported as reused.
func (m *Manager) verifyWorktreeBranch(ctx context.Context, path, branch string) error {
	current, err := m.git.CurrentBranchAt(ctx, path)
	if err != nil {
		return fmt.Errorf("inspecting existing worktree %s: %w", path, err)
	}
	if current != branch {
		return fmt.Errorf("worktree %s is on branch %q, expected %q", path, current, branch)
	}
	return nil
}

// DestroyWorkspace removes a unit's working tree, and its branch when
// deleteBranch is set. Only units in lane done qualify. Calling it
// again after the workspace is gone is a no-op.
func (m *Manager) DestroyWorkspace(ctx context.Context, featureSlug, unitID string, deleteBranch bool) error {
	lease, err := m.locks.Acquire(ctx, lock.UnitResource(unitID), m.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release() }()

	u, err := m.store.Load(featureSlug, unitID)
	if err != nil {
		return err
	}
	if u.Lane != workunit.LaneDone {
		return fmt.Errorf("%w: unit %s is in lane %s", ErrNotDone, unitID, u.Lane)
	}

	path := m.WorktreePath(featureSlug, unitID)
	if _, err := os.Stat(path); err == nil {
		if err := m.git.RemoveWorktree(ctx, path, true); err != nil {
			return fmt.Errorf("removing worktree for %s: %w", unitID, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking worktree path %s: %w", path, err)
	}
	if err := m.git.PruneWorktrees(ctx); err != nil {
		return err
	}

	if deleteBranch {
		branch := feature.UnitBranch(featureSlug, unitID)
		exists, err := m.git.BranchExists(branch)
		if err != nil {
			return err
		}
		if exists {
			if err := m.git.DeleteBranch(ctx, branch, true); err != nil {
				return fmt.Errorf("deleting branch %s: %w", branch, err)
			}
		}
	}

	m.logger.Info("destroyed workspace",
		zap.String("feature", featureSlug),
		zap.String("unit", unitID),
		zap.Bool("branch_deleted", deleteBranch))
	return nil
}

// DirtyFiles lists uncommitted paths in a unit's workspace. A unit
// without a workspace reports none. Satisfies lane.WorkspaceChecker.
func (m *Manager) DirtyFiles(ctx context.Context, featureSlug, unitID string) ([]string, error) {
	path := m.WorktreePath(featureSlug, unitID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return m.git.DirtyFiles(ctx, path)
}

// List returns the workspaces of one feature, derived from the
// repository's worktree list.
func (m *Manager) List(ctx context.Context, featureSlug string) ([]Workspace, error) {
	trees, err := m.git.Worktrees(ctx)
	if err != nil {
		return nil, err
	}
	prefix := featureSlug + "-"
	var workspaces []Workspace
	for _, tree := range trees {
		if !strings.HasPrefix(tree.Branch, prefix) {
			continue
		}
		workspaces = append(workspaces, Workspace{
			UnitID:  strings.TrimPrefix(tree.Branch, prefix),
			Feature: featureSlug,
			Branch:  tree.Branch,
			Path:    tree.Path,
		})
	}
	return workspaces, nil
}
