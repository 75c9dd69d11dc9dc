package secrets

import (
	"encoding/json"
	"time"
)

// AuditLog records what was redacted from a piece of text. It never
// stores secret values, only rule metadata and short previews.
type AuditLog struct {
	Timestamp  time.Time   `json:"timestamp"`
	Redactions []Redaction `json:"redactions"`
	Summary    Summary     `json:"summary"`
}

// Redaction describes one redacted match.
type Redaction struct {
	RuleID      string `json:"rule_id"`
	RuleDesc    string `json:"rule_desc"`
	LineNumber  int    `json:"line_number"`
	Column      int    `json:"column"`
	OriginalLen int    `json:"original_len"`
	Preview     string `json:"preview"` // first 4 characters only
}

// Summary aggregates the redactions.
type Summary struct {
	TotalSecrets     int            `json:"total_secrets"`
	UniqueRules      int            `json:"unique_rules"`
	RuleCounts       map[string]int `json:"rule_counts"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// HasRedactions reports whether anything was redacted.
func (a *AuditLog) HasRedactions() bool {
	return len(a.Redactions) > 0
}

// JSON renders the audit log compactly for structured log fields.
func (a *AuditLog) JSON() string {
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}
