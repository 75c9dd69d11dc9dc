package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Scrubber redacts secrets from agent-authored text. The allowlist is
// loaded once at construction; detection runs per call.
type Scrubber struct {
	allowlist *Allowlist
	enabled   bool
	logger    *zap.Logger
}

// ScrubberConfig configures a Scrubber.
type ScrubberConfig struct {
	// Root is the repository root holding .kittify/allowlist.toml.
	Root string
	// UserAllowlist is an optional path to a user-level allowlist.
	UserAllowlist string
	// Disabled turns the scrubber into a pass-through.
	Disabled bool
	Logger   *zap.Logger
}

// NewScrubber loads the allowlists and returns a ready scrubber.
func NewScrubber(cfg ScrubberConfig) (*Scrubber, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowlist, err := LoadAllowlists(cfg.Root, cfg.UserAllowlist)
	if err != nil {
		return nil, fmt.Errorf("loading allowlists: %w", err)
	}
	return &Scrubber{
		allowlist: allowlist,
		enabled:   !cfg.Disabled,
		logger:    logger,
	}, nil
}

// Enabled reports whether scrubbing is active.
func (s *Scrubber) Enabled() bool {
	return s.enabled
}

// Scrub replaces every detected secret with a [REDACTED:rule:prev]
// marker and returns the result with its audit log. The marker keeps
// enough context for a reader to understand what was there.
func (s *Scrubber) Scrub(content string) (string, *AuditLog, error) {
	start := time.Now()
	if !s.enabled || content == "" {
		return content, buildAuditLog(nil, time.Since(start)), nil
	}

	findings, err := Detect(content, s.allowlist)
	if err != nil {
		return "", nil, fmt.Errorf("detecting secrets: %w", err)
	}

	audit := buildAuditLog(findings, time.Since(start))
	if len(findings) == 0 {
		return content, audit, nil
	}

	s.logger.Warn("redacted secrets from text",
		zap.Int("count", audit.Summary.TotalSecrets),
		zap.Any("rules", audit.Summary.RuleCounts))
	return replaceFindings(content, findings), audit, nil
}

// ScrubNote is Scrub for callers that only need the cleaned text.
// Detection failures degrade to dropping the note entirely rather than
// letting a possibly secret-bearing note through.
func (s *Scrubber) ScrubNote(note string) string {
	cleaned, _, err := s.Scrub(note)
	if err != nil {
		s.logger.Error("scrubbing note failed, dropping it", zap.Error(err))
		return ""
	}
	return cleaned
}

// replaceFindings substitutes markers for matches, walking lines in
// reverse so earlier indices stay valid.
func replaceFindings(content string, findings []Finding) string {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line > sorted[j].Line
		}
		return sorted[i].StartCol > sorted[j].StartCol
	})

	lines := strings.Split(content, "\n")
	for _, f := range sorted {
		if f.Line < 1 || f.Line > len(lines) {
			continue
		}
		line := lines[f.Line-1]
		if f.StartCol < 0 || f.EndCol > len(line) || f.StartCol > f.EndCol {
			continue
		}
		marker := fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, preview(f.Match))
		lines[f.Line-1] = line[:f.StartCol] + marker + line[f.EndCol:]
	}
	return strings.Join(lines, "\n")
}

func preview(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[:4]
}

func buildAuditLog(findings []Finding, elapsed time.Duration) *AuditLog {
	redactions := make([]Redaction, 0, len(findings))
	ruleCounts := make(map[string]int)

	for _, f := range findings {
		redactions = append(redactions, Redaction{
			RuleID:      f.RuleID,
			RuleDesc:    f.RuleDesc,
			LineNumber:  f.Line,
			Column:      f.StartCol,
			OriginalLen: len(f.Match),
			Preview:     preview(f.Match),
		})
		ruleCounts[f.RuleID]++
	}

	return &AuditLog{
		Timestamp:  time.Now().UTC(),
		Redactions: redactions,
		Summary: Summary{
			TotalSecrets:     len(findings),
			UniqueRules:      len(ruleCounts),
			RuleCounts:       ruleCounts,
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
	}
}
