package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle. Path holds the ids along the cycle,
// first id repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// SelfReferenceError reports a unit that lists itself as a dependency, the
// degenerate single-node cycle.
type SelfReferenceError struct {
	UnitID string
}

func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("work package %s depends on itself", e.UnitID)
}

// DanglingReferenceError reports a dependency id with no corresponding unit
// in the feature.
type DanglingReferenceError struct {
	UnitID    string
	MissingID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("work package %s depends on %s, which does not exist in this feature", e.UnitID, e.MissingID)
}

// UnknownUnitError reports a requested unit id the resolver has never seen.
type UnknownUnitError struct {
	UnitID string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown work package %s", e.UnitID)
}
