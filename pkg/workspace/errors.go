package workspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bruj0/spec-kitty-sub000/pkg/graph"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// ErrNotDone guards workspace destruction: only units in lane done may
// have their workspace removed.
var ErrNotDone = errors.New("workspace destruction requires lane done")

// WorkspaceNotFoundError reports an explicit base override that points
// at a branch which does not exist. Lane is the unit's current lane, so
// the caller can decide on a corrective action.
type WorkspaceNotFoundError struct {
	UnitID string
	Base   string
	Lane   workunit.Lane
}

func (e *WorkspaceNotFoundError) Error() string {
	return fmt.Sprintf("unit %s (lane %s): explicit base %q does not exist",
		e.UnitID, e.Lane, e.Base)
}

// BaseUnavailableError reports a base branch that is not a reachable
// reference at workspace or target-branch creation time.
type BaseUnavailableError struct {
	UnitID string
	Base   string
}

func (e *BaseUnavailableError) Error() string {
	if e.UnitID == "" {
		return fmt.Sprintf("base branch %q is unavailable", e.Base)
	}
	return fmt.Sprintf("unit %s: base branch %q is unavailable", e.UnitID, e.Base)
}

// MultiParentBaseError reports a unit with two or more dependencies and
// no explicit base. The dependency classification is advisory; the
// engine never auto-picks a base among multiple parents.
type MultiParentBaseError struct {
	UnitID       string
	Dependencies []string
	Class        graph.ParentClass
}

func (e *MultiParentBaseError) Error() string {
	return fmt.Sprintf("unit %s depends on %s: an explicit base is required (dependency progress: %s)",
		e.UnitID, strings.Join(e.Dependencies, ", "), e.Class)
}
