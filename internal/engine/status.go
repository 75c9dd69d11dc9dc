package engine

import (
	"context"
	"os"

	"github.com/bruj0/spec-kitty-sub000/pkg/feature"
	"github.com/bruj0/spec-kitty-sub000/pkg/graph"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// UnitStatus is one unit's row in a feature status report.
type UnitStatus struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Lane         string   `json:"lane"`
	Dependencies []string `json:"dependencies"`
	Owner        string   `json:"owner,omitempty"`
	ReviewStatus string   `json:"review_status,omitempty"`
	BaseBranch   string   `json:"base_branch,omitempty"`

	// Ready marks units whose every dependency is done and which have
	// not started yet.
	Ready bool `json:"ready"`

	// HasWorkspace reports whether the unit's worktree exists on disk.
	HasWorkspace bool `json:"has_workspace"`
}

// FeatureStatus is the read-only view of one feature. Producing it
// takes no locks; the lanes it shows are whatever the records held at
// read time.
type FeatureStatus struct {
	Feature      string       `json:"feature"`
	Target       string       `json:"target"`
	TargetExists bool         `json:"target_exists"`
	Units        []UnitStatus `json:"units"`
	Ready        []string     `json:"ready"`

	// Problem carries the structural error when the dependency graph
	// is invalid; the ready set is empty then, but lanes still show.
	Problem string `json:"problem,omitempty"`
}

// Status reports the lane of every unit and the ready set.
func (e *Engine) Status(ctx context.Context, featureSlug string) (*FeatureStatus, error) {
	if _, err := e.features.Get(featureSlug); err != nil {
		return nil, err
	}
	units, err := e.store.LoadAll(featureSlug)
	if err != nil {
		return nil, err
	}

	target := feature.TargetBranch(featureSlug)
	targetExists, err := e.git.BranchExists(target)
	if err != nil {
		return nil, err
	}

	status := &FeatureStatus{
		Feature:      featureSlug,
		Target:       target,
		TargetExists: targetExists,
	}

	resolver := graph.NewResolver(units)
	ready := map[string]bool{}
	if err := resolver.Validate(); err != nil {
		status.Problem = err.Error()
	} else {
		for _, u := range resolver.ReadyUnits() {
			ready[u.ID] = true
			status.Ready = append(status.Ready, u.ID)
		}
	}

	for _, u := range units {
		status.Units = append(status.Units, UnitStatus{
			ID:           u.ID,
			Title:        u.Title,
			Lane:         string(u.Lane),
			Dependencies: append([]string(nil), u.Dependencies...),
			Owner:        u.Owner,
			ReviewStatus: u.ReviewStatus,
			BaseBranch:   u.BaseBranch,
			Ready:        ready[u.ID],
			HasWorkspace: e.hasWorktree(featureSlug, u),
		})
	}
	return status, nil
}

func (e *Engine) hasWorktree(featureSlug string, u *workunit.WorkUnit) bool {
	info, err := os.Stat(e.workspaces.WorktreePath(featureSlug, u.ID))
	return err == nil && info.IsDir()
}
