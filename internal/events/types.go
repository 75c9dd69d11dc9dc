package events

import "time"

// Subjects fan out per feature so dashboards subscribe to exactly the
// feature they render. The wildcard form is FeatureSubjects.
const (
	subjectPrefix    = "kitty.feature."
	subjectReclaimed = "kitty.locks.reclaimed"
)

// LaneSubject is where lane transitions for a feature are published.
func LaneSubject(slug string) string { return subjectPrefix + slug + ".lane" }

// MergeSubject is where merge outcomes for a feature are published.
func MergeSubject(slug string) string { return subjectPrefix + slug + ".merge" }

// RecordSubject is where task-record file changes for a feature are
// published.
func RecordSubject(slug string) string { return subjectPrefix + slug + ".record" }

// FeatureSubjects matches every event of one feature.
func FeatureSubjects(slug string) string { return subjectPrefix + slug + ".>" }

// ReclaimedSubject is where stale-lock reclamations are published.
func ReclaimedSubject() string { return subjectReclaimed }

// LaneEvent records one lifecycle transition.
type LaneEvent struct {
	ID        string    `json:"id"`
	Feature   string    `json:"feature"`
	UnitID    string    `json:"unit_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// MergeEvent records the outcome of one merge invocation, successful
// or halted.
type MergeEvent struct {
	ID        string            `json:"id"`
	Feature   string            `json:"feature"`
	Target    string            `json:"target"`
	Results   map[string]string `json:"results"`
	Conflict  *ConflictInfo     `json:"conflict,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ConflictInfo names what halted a merge.
type ConflictInfo struct {
	UnitID string   `json:"unit_id"`
	Branch string   `json:"branch"`
	Files  []string `json:"files"`
}

// RecordEvent reports a task-record file change seen by the watcher.
type RecordEvent struct {
	ID        string    `json:"id"`
	Feature   string    `json:"feature"`
	UnitID    string    `json:"unit_id"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// ReclaimEvent reports a stale lock marker that was taken over.
type ReclaimEvent struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}
