package merge

import (
	"fmt"
	"strings"

	"github.com/bruj0/spec-kitty-sub000/pkg/graph"
)

// UnitResult is the per-unit outcome of one merge invocation.
type UnitResult int

const (
	// ResultMerged: the unit's branch is in the target.
	ResultMerged UnitResult = iota
	// ResultConflict: the merge halted on this unit's branch.
	ResultConflict
	// ResultSkipped: the unit has no branch to merge.
	ResultSkipped
	// ResultPending: not reached because an earlier unit conflicted.
	ResultPending
)

func (r UnitResult) String() string {
	switch r {
	case ResultMerged:
		return "merged"
	case ResultConflict:
		return "conflict"
	case ResultSkipped:
		return "skipped"
	case ResultPending:
		return "pending"
	default:
		return "unknown"
	}
}

// ConflictDetail names the files that stopped a merge and the working
// tree that was left in the conflicted state for manual resolution.
type ConflictDetail struct {
	UnitID string
	Branch string
	Files  []string
	Dir    string
}

// Session is the transient record of one merge invocation. It is never
// persisted; durable traces live in the affected units' history.
type Session struct {
	Feature string
	Target  string

	// Order is the dependency-respecting sequence of units with
	// branches; skipped units are not part of it.
	Order []string

	// Results covers every unit of the feature.
	Results map[string]UnitResult

	// Conflict is set when the invocation halted.
	Conflict *ConflictDetail
}

// Merged lists the units whose branches made it into the target, in
// merge order.
func (s *Session) Merged() []string {
	var out []string
	for _, id := range s.Order {
		if s.Results[id] == ResultMerged {
			out = append(out, id)
		}
	}
	return out
}

// Pending lists the units the halt left unmerged, in merge order.
func (s *Session) Pending() []string {
	var out []string
	for _, id := range s.Order {
		if s.Results[id] == ResultPending {
			out = append(out, id)
		}
	}
	return out
}

// Advisory is a conflict-risk note for one multi-parent unit.
type Advisory struct {
	UnitID string
	Class  graph.ParentClass
	Note   string
}

// PreflightReport is the outcome of the pre-merge verification pass.
type PreflightReport struct {
	Feature      string
	Target       string
	TargetExists bool

	// Dirty maps units to their uncommitted workspace paths.
	Dirty map[string][]string

	// Advisories carries dependency-progress notes for multi-parent
	// units about to merge.
	Advisories []Advisory
}

// Clean reports whether nothing blocks a merge: target reachable and no
// dirty workspace.
func (r *PreflightReport) Clean() bool {
	return r.TargetExists && len(r.Dirty) == 0
}

// ForecastClass grades a predicted conflict. Callers are expected to
// switch over all three values.
type ForecastClass int

const (
	// ForecastNone: no overlap predicted.
	ForecastNone ForecastClass = iota
	// ForecastAutoResolvable: several units touch the file in disjoint
	// regions; a textual merge is expected to succeed.
	ForecastAutoResolvable
	// ForecastManual: overlapping regions; a human will have to pick.
	ForecastManual
)

func (c ForecastClass) String() string {
	switch c {
	case ForecastNone:
		return "none"
	case ForecastAutoResolvable:
		return "auto_resolvable"
	case ForecastManual:
		return "manual"
	default:
		return "unknown"
	}
}

// FileForecast predicts how one file shared between unit branches will
// merge. The prediction is heuristic: region overlap between diffs
// against each branch's merge base, not a true merge simulation.
type FileForecast struct {
	File    string
	UnitIDs []string
	Class   ForecastClass
}

// DryRunReport is the outcome of a merge dry run. Nothing has been
// mutated; Order is what a real merge would do first to last.
type DryRunReport struct {
	Feature   string
	Target    string
	Order     []string
	Skipped   []string
	Forecasts []FileForecast
}

// ManualCount returns how many files are predicted to need a human.
func (r *DryRunReport) ManualCount() int {
	n := 0
	for _, f := range r.Forecasts {
		if f.Class == ForecastManual {
			n++
		}
	}
	return n
}

// ForceRequiredError rejects a plain merge for a multi-parent unit
// whose dependencies are all done but whose branches have not been
// combined into the target yet. Passing force merges the unit's branch
// directly; conflict detection still applies.
type ForceRequiredError struct {
	UnitID       string
	Dependencies []string
}

func (e *ForceRequiredError) Error() string {
	return fmt.Sprintf("unit %s has all dependencies done (%s); merge the dependency branches into the target first, or pass force to merge directly",
		e.UnitID, strings.Join(e.Dependencies, ", "))
}
