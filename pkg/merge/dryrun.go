package merge

import (
	"context"
	"fmt"
	"sort"

	"github.com/bruj0/spec-kitty-sub000/pkg/feature"
	"github.com/bruj0/spec-kitty-sub000/pkg/git"
	"github.com/bruj0/spec-kitty-sub000/pkg/graph"
)

// MergeDryRun computes, without mutating anything, the order a merge
// would use and a per-file conflict forecast for files touched by more
// than one unit branch.
//
// The forecast is a heuristic, not a merge simulation: each unit's
// changes are diffed against its own merge base with the target, and
// two units collide on a file when any of their changed regions
// overlap. Overlapping regions classify as manual, disjoint ones as
// auto-resolvable. Files where a region map cannot be derived (binary
// changes) classify as manual.
func (o *Orchestrator) MergeDryRun(ctx context.Context, featureSlug string) (*DryRunReport, error) {
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

	var candidates, skipped []string
	bases := make(map[string]string)
	for _, u := range units {
		branch := feature.UnitBranch(featureSlug, u.ID)
		hasBranch, err := o.git.BranchExists(branch)
		if err != nil {
			return nil, err
		}
		if !hasBranch {
			skipped = append(skipped, u.ID)
			continue
		}
		candidates = append(candidates, u.ID)
		base, err := o.git.MergeBase(ctx, target, branch)
		if err != nil {
			return nil, err
		}
		bases[u.ID] = base
	}
	sort.Strings(skipped)

	order, err := resolver.MergeOrder(candidates)
	if err != nil {
		return nil, err
	}

	report := &DryRunReport{
		Feature: featureSlug,
		Target:  target,
		Order:   order,
		Skipped: skipped,
	}

	// file -> unit ids touching it, in merge order.
	touched := make(map[string][]string)
	for _, id := range order {
		branch := feature.UnitBranch(featureSlug, id)
		files, err := o.git.ChangedFiles(ctx, bases[id], branch)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			touched[f] = append(touched[f], id)
		}
	}

	var shared []string
	for f, ids := range touched {
		if len(ids) > 1 {
			shared = append(shared, f)
		}
	}
	sort.Strings(shared)

	for _, f := range shared {
		ids := touched[f]
		hunks := make([][]git.Hunk, len(ids))
		for i, id := range ids {
			branch := feature.UnitBranch(featureSlug, id)
			h, err := o.git.DiffHunks(ctx, bases[id], branch, f)
			if err != nil {
				return nil, err
			}
			hunks[i] = h
		}
		report.Forecasts = append(report.Forecasts, FileForecast{
			File:    f,
			UnitIDs: ids,
			Class:   classifyOverlap(hunks),
		})
	}
	return report, nil
}

// classifyOverlap compares every pair of units' changed regions on one
// file. A unit with no derivable regions forces manual.
func classifyOverlap(hunks [][]git.Hunk) ForecastClass {
	for _, h := range hunks {
		if len(h) == 0 {
			return ForecastManual
		}
	}
	for i := 0; i < len(hunks); i++ {
		for j := i + 1; j < len(hunks); j++ {
			for _, a := range hunks[i] {
				for _, b := range hunks[j] {
					if a.Overlaps(b) {
						return ForecastManual
					}
				}
			}
		}
	}
	return ForecastAutoResolvable
}
