// Package workunit defines the work-package record model and its on-disk store.
//
// A work package is one dependency-trackable piece of work inside a feature.
// Records are persisted as Markdown files with a YAML header block under
// kitty-specs/<feature-slug>/tasks/, one file per unit. The header carries the
// coordination state (lane, dependencies, history); the body is free-form text
// owned by whoever authored the package.
package workunit

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Lane is the lifecycle state of a work unit. The values are the strings
// written to disk.
type Lane string

const (
	LanePlanned    Lane = "planned"
	LaneInProgress Lane = "doing"
	LaneInReview   Lane = "for_review"
	LaneDone       Lane = "done"
	LaneRejected   Lane = "rejected"
)

// Valid reports whether l is one of the five known lanes.
func (l Lane) Valid() bool {
	switch l {
	case LanePlanned, LaneInProgress, LaneInReview, LaneDone, LaneRejected:
		return true
	}
	return false
}

// Terminal reports whether l ends the happy path. Rejected units may be
// reopened, so only Done is terminal.
func (l Lane) Terminal() bool { return l == LaneDone }

func (l Lane) String() string { return string(l) }

// ParseLane converts a header string into a Lane.
func ParseLane(s string) (Lane, error) {
	l := Lane(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLane, s)
	}
	return l, nil
}

// HistoryEntry is one append-only audit record on a work unit. Entries are
// never rewritten or reordered once persisted.
type HistoryEntry struct {
	Timestamp time.Time `yaml:"timestamp"`
	Lane      Lane      `yaml:"lane"`
	Actor     string    `yaml:"actor"`
	Action    string    `yaml:"action"`
}

// WorkUnit is a strongly typed view of one persisted work-package record.
//
// Unknown header fields encountered at load time are kept in Extra and written
// back verbatim, but are never interpreted.
type WorkUnit struct {
	// ID is the work-package identifier, unique within its feature (e.g. "WP01")
	ID string

	// Title is the human-readable name of the unit
	Title string

	// Lane is the current lifecycle state
	Lane Lane

	// Dependencies lists the ids of units this unit depends on, in declared order
	Dependencies []string

	// BaseBranch optionally overrides base resolution for the unit's workspace
	BaseBranch string

	// ReviewStatus tracks the review outcome (e.g. "pending", "approved")
	ReviewStatus string

	// Owner identifies the agent or actor the unit is assigned to
	Owner string

	// History is the append-only transition log
	History []HistoryEntry

	// Body is the free-form Markdown below the header block
	Body string

	// Extra holds header fields this engine does not interpret
	Extra map[string]interface{}

	// Path is the absolute file the record was loaded from (empty until saved)
	Path string
}

// Validation errors.
var (
	ErrInvalidUnit    = errors.New("invalid work unit")
	ErrIDRequired     = errors.New("work_package_id is required")
	ErrIDMalformed    = errors.New("work_package_id must match WP<number>")
	ErrUnknownLane    = errors.New("unknown lane")
	ErrSelfDependency = errors.New("unit depends on itself")
)

var idPattern = regexp.MustCompile(`^WP\d+$`)

// Validate checks the record's own invariants. Cross-unit invariants
// (dangling references, cycles) belong to the dependency graph resolver.
func (u *WorkUnit) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidUnit, ErrIDRequired)
	}
	if !idPattern.MatchString(u.ID) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidUnit, ErrIDMalformed, u.ID)
	}
	if !u.Lane.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidUnit, ErrUnknownLane, u.Lane)
	}
	for _, dep := range u.Dependencies {
		if dep == u.ID {
			return fmt.Errorf("%w: %w: %s", ErrInvalidUnit, ErrSelfDependency, u.ID)
		}
	}
	return nil
}

// AppendHistory adds an audit entry for a lane change. The entry lands at the
// end of the list; existing entries are untouched.
func (u *WorkUnit) AppendHistory(lane Lane, actor, action string, at time.Time) {
	u.History = append(u.History, HistoryEntry{
		Timestamp: at.UTC(),
		Lane:      lane,
		Actor:     actor,
		Action:    action,
	})
}
