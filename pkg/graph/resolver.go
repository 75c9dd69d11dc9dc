// Package graph builds the dependency graph over a feature's work packages
// and answers the questions the rest of the engine asks of it: is the graph
// valid, what may start now, in what order do branches merge, and how far
// along are a unit's parents.
//
// The graph is derived from unit records on demand and never persisted;
// construct a fresh Resolver from freshly loaded units rather than holding one
// across operations.
package graph

import (
	"errors"
	"sort"

	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// ParentClass describes how far a multi-parent unit's dependencies have
// progressed. Callers are expected to switch over all three values.
type ParentClass int

const (
	// ParentsAllDone: every dependency is Done. Pre-merging the parents into
	// the target before branching is advisable to reduce conflict risk.
	ParentsAllDone ParentClass = iota

	// ParentsMixed: some dependencies are Done, some are not. The unit may
	// combine in-progress branches directly.
	ParentsMixed

	// ParentsNonePending: none of the dependencies has reached Done yet.
	ParentsNonePending
)

func (c ParentClass) String() string {
	switch c {
	case ParentsAllDone:
		return "all_done"
	case ParentsMixed:
		return "mixed"
	case ParentsNonePending:
		return "none_pending"
	default:
		return "unknown"
	}
}

// ErrNotMultiParent is returned by ClassifyMultiParent for units with fewer
// than two dependencies.
var ErrNotMultiParent = errors.New("classification applies to units with two or more dependencies")

// Resolver is a read-only view over one feature's units.
type Resolver struct {
	units map[string]*workunit.WorkUnit
	order []string
}

// NewResolver builds a resolver over the given units. Input order does not
// matter; the resolver keeps its own ascending-id ordering for determinism.
func NewResolver(units []*workunit.WorkUnit) *Resolver {
	r := &Resolver{
		units: make(map[string]*workunit.WorkUnit, len(units)),
		order: make([]string, 0, len(units)),
	}
	for _, u := range units {
		r.units[u.ID] = u
		r.order = append(r.order, u.ID)
	}
	sort.Slice(r.order, func(i, j int) bool {
		return workunit.CompareIDs(r.order[i], r.order[j]) < 0
	})
	return r
}

// Unit returns the unit for an id, or nil.
func (r *Resolver) Unit(id string) *workunit.WorkUnit { return r.units[id] }

// Validate checks the structural invariants of the graph: every dependency id
// resolves to a unit, no unit references itself, and the graph is acyclic.
//
// Structural failures block planning finalization; nothing downstream may run
// against an invalid graph.
func (r *Resolver) Validate() error {
	for _, id := range r.order {
		u := r.units[id]
		for _, dep := range u.Dependencies {
			if dep == id {
				return &SelfReferenceError{UnitID: id}
			}
			if _, ok := r.units[dep]; !ok {
				return &DanglingReferenceError{UnitID: id, MissingID: dep}
			}
		}
	}

	// Depth-first walk; a node revisited while still on the active path closes
	// a cycle.
	const (
		unvisited = 0
		active    = 1
		finished  = 2
	)
	state := make(map[string]int, len(r.units))
	var path []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		state[id] = active
		path = append(path, id)
		for _, dep := range r.units[id].Dependencies {
			switch state[dep] {
			case active:
				return closeCycle(path, dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = finished
		return nil
	}

	for _, id := range r.order {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// closeCycle slices the active path from the first occurrence of start and
// appends start again so the reported path reads as a loop.
func closeCycle(path []string, start string) *CycleError {
	for i, id := range path {
		if id == start {
			cycle := append(append([]string{}, path[i:]...), start)
			return &CycleError{Path: cycle}
		}
	}
	return &CycleError{Path: []string{start, start}}
}

// ReadyUnits returns the units that may start now: every dependency Done, and
// the unit itself not already picked up (InProgress, InReview and Done units
// are excluded; Planned and Rejected units qualify). Results are in ascending
// id order.
//
// A dependency that does not resolve counts as unmet; Validate is where
// dangling references become errors.
func (r *Resolver) ReadyUnits() []*workunit.WorkUnit {
	var ready []*workunit.WorkUnit
	for _, id := range r.order {
		u := r.units[id]
		switch u.Lane {
		case workunit.LaneInProgress, workunit.LaneInReview, workunit.LaneDone:
			continue
		}
		if r.depsDone(u) {
			ready = append(ready, u)
		}
	}
	return ready
}

func (r *Resolver) depsDone(u *workunit.WorkUnit) bool {
	for _, dep := range u.Dependencies {
		d, ok := r.units[dep]
		if !ok || d.Lane != workunit.LaneDone {
			return false
		}
	}
	return true
}

// MergeOrder returns a topological ordering of the requested units:
// dependencies strictly before dependents, considering only edges between
// requested units. Ties among independent units break by ascending unit id,
// so repeated calls yield identical orderings.
func (r *Resolver) MergeOrder(targetIDs []string) ([]string, error) {
	set := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		if _, ok := r.units[id]; !ok {
			return nil, &UnknownUnitError{UnitID: id}
		}
		set[id] = true
	}

	// Indegree counts only edges inside the requested set.
	indegree := make(map[string]int, len(set))
	dependents := make(map[string][]string, len(set))
	for id := range set {
		indegree[id] = 0
	}
	for id := range set {
		for _, dep := range r.units[id].Dependencies {
			if set[dep] {
				indegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	order := make([]string, 0, len(set))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		unblocked := false
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				unblocked = true
			}
		}
		if unblocked {
			sortIDs(ready)
		}
	}

	if len(order) != len(set) {
		remaining := make([]string, 0, len(set)-len(order))
		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sortIDs(remaining)
		return nil, &CycleError{Path: remaining}
	}
	return order, nil
}

// ClassifyMultiParent reports the dependency progress of a unit with two or
// more parents. Unknown ids fail with UnknownUnitError; units below two
// dependencies fail with ErrNotMultiParent.
func (r *Resolver) ClassifyMultiParent(unitID string) (ParentClass, error) {
	u, ok := r.units[unitID]
	if !ok {
		return ParentsNonePending, &UnknownUnitError{UnitID: unitID}
	}
	if len(u.Dependencies) < 2 {
		return ParentsNonePending, ErrNotMultiParent
	}

	done := 0
	for _, dep := range u.Dependencies {
		if d, ok := r.units[dep]; ok && d.Lane == workunit.LaneDone {
			done++
		}
	}
	switch {
	case done == len(u.Dependencies):
		return ParentsAllDone, nil
	case done == 0:
		return ParentsNonePending, nil
	default:
		return ParentsMixed, nil
	}
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return workunit.CompareIDs(ids[i], ids[j]) < 0
	})
}
