package secrets

import (
	"regexp"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding locates one detected secret.
type Finding struct {
	RuleID   string // Gitleaks rule ID (e.g. "github-pat")
	RuleDesc string // human-readable description
	Line     int    // 1-based line of the match
	StartCol int    // start column
	EndCol   int    // end column
	Match    string // the matched secret value
}

// Detect scans content with the full Gitleaks default rule set,
// minus whatever the allowlist excludes. allowlist may be nil.
func Detect(content string, allowlist *Allowlist) ([]Finding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	if allowlist != nil {
		applyAllowlist(&detector.Config, allowlist)
	}

	raw := detector.DetectString(content)

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		// DetectString reports 0-based lines, and on every line after
		// the first its columns are offset by the preceding newline.
		// Normalize to the 1-based line and [StartCol:EndCol) slice
		// bounds this struct documents.
		startCol := f.StartColumn - 1
		endCol := f.EndColumn
		if f.StartLine > 0 {
			startCol--
			endCol--
		}
		findings = append(findings, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine + 1,
			StartCol: startCol,
			EndCol:   endCol,
			Match:    f.Secret,
		})
	}
	return findings, nil
}

// applyAllowlist folds user patterns into the Gitleaks config. Patterns
// were compile-checked at load time; a failure here is a bug.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "kittyd allowlist",
	}

	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("unvalidated path pattern reached the detector: " + pattern)
		}
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("unvalidated content pattern reached the detector: " + pattern)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}

	cfg.Allowlists = append(cfg.Allowlists, global)
}
