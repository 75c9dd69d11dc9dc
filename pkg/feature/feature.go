// Package feature discovers features under kitty-specs/ and owns the
// branch naming scheme: a feature's target branch carries its slug, a
// unit branch appends the unit id (user-auth-WP01).
package feature

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// DefaultTrunk is the branch feature target branches are created from
// when the configuration does not name one.
const DefaultTrunk = "main"

// Feature is one coordinated body of work with its own unit records,
// target branch, and workspaces.
type Feature struct {
	// Slug identifies the feature; it doubles as the target branch name
	Slug string

	// Dir is the feature's directory under kitty-specs/
	Dir string

	// TargetBranch is the integration branch unit branches merge into
	TargetBranch string
}

// NotFoundError reports a feature slug with no directory on disk.
type NotFoundError struct {
	Slug string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("feature %s not found", e.Slug)
}

// TargetBranch returns the integration branch name for a feature slug.
func TargetBranch(slug string) string { return slug }

// UnitBranch returns the isolated branch name for one unit of a feature.
func UnitBranch(slug, unitID string) string { return slug + "-" + unitID }

// Slugify turns a free-form feature name into a slug usable as a
// directory and branch name.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// Service answers feature discovery queries against one repository.
type Service struct {
	root   string
	trunk  string
	logger *zap.Logger
}

// NewService creates a Service rooted at the repository root. An empty
// trunk falls back to DefaultTrunk.
func NewService(root, trunk string, logger *zap.Logger) *Service {
	if trunk == "" {
		trunk = DefaultTrunk
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{root: root, trunk: trunk, logger: logger}
}

// Trunk returns the branch new target branches are created from.
func (s *Service) Trunk() string { return s.trunk }

// SpecsDir returns the directory features live under.
func (s *Service) SpecsDir() string {
	return filepath.Join(s.root, workunit.SpecsDirName)
}

// List enumerates features in slug order. A repository without a
// kitty-specs directory has no features; that is not an error.
func (s *Service) List() ([]Feature, error) {
	entries, err := os.ReadDir(s.SpecsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.SpecsDir(), err)
	}

	var features []Feature
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		features = append(features, s.feature(entry.Name()))
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Slug < features[j].Slug })
	return features, nil
}

// Get returns one feature by slug.
func (s *Service) Get(slug string) (Feature, error) {
	info, err := os.Stat(filepath.Join(s.SpecsDir(), slug))
	if err != nil || !info.IsDir() {
		return Feature{}, &NotFoundError{Slug: slug}
	}
	return s.feature(slug), nil
}

// FromBranch resolves the feature a branch belongs to: either the
// target branch itself or a unit branch carrying the slug as prefix.
// The longest matching slug wins, so nested slugs resolve correctly.
func (s *Service) FromBranch(branch string) (Feature, error) {
	features, err := s.List()
	if err != nil {
		return Feature{}, err
	}

	var best *Feature
	for i := range features {
		f := &features[i]
		if branch != f.Slug && !strings.HasPrefix(branch, f.Slug+"-") {
			continue
		}
		if best == nil || len(f.Slug) > len(best.Slug) {
			best = f
		}
	}
	if best == nil {
		return Feature{}, &NotFoundError{Slug: branch}
	}
	return *best, nil
}

func (s *Service) feature(slug string) Feature {
	return Feature{
		Slug:         slug,
		Dir:          filepath.Join(s.SpecsDir(), slug),
		TargetBranch: TargetBranch(slug),
	}
}
