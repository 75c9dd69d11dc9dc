package workunit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SpecsDirName is the directory under the repository root that holds one
// subdirectory per feature.
const SpecsDirName = "kitty-specs"

// tasksDirName holds the unit records inside a feature directory.
const tasksDirName = "tasks"

// NotFoundError reports a unit id with no record file in a feature.
type NotFoundError struct {
	Feature string
	UnitID  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("work package %s not found in feature %s", e.UnitID, e.Feature)
}

// Store reads and writes unit records under a repository root.
//
// The store is the single authoritative source for lane state: callers must
// re-read records through it inside their critical sections rather than
// caching lanes across operations.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a Store rooted at the repository root.
func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the repository root the store operates on.
func (s *Store) Root() string { return s.root }

// TasksDir returns the directory holding a feature's unit records.
func (s *Store) TasksDir(feature string) string {
	return filepath.Join(s.root, SpecsDirName, feature, tasksDirName)
}

// Load reads one unit record by id.
func (s *Store) Load(feature, unitID string) (*WorkUnit, error) {
	path, err := s.findPath(feature, unitID)
	if err != nil {
		return nil, err
	}
	return s.loadFile(path)
}

// LoadAll reads every unit record of a feature, ordered by ascending unit id.
//
// A single malformed record fails the whole load: coordination decisions made
// on a partial view of the feature would be wrong in ways that are hard to
// detect later.
func (s *Store) LoadAll(feature string) ([]*WorkUnit, error) {
	dir := s.TasksDir(feature)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading tasks directory %s: %w", dir, err)
	}

	var units []*WorkUnit
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		u, err := s.loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}

	sort.Slice(units, func(i, j int) bool {
		return CompareIDs(units[i].ID, units[j].ID) < 0
	})
	return units, nil
}

// Save writes a unit record atomically (temp file in the same directory, then
// rename). New units get a file named <id>-<slug>.md, or <id>.md without a
// title.
func (s *Store) Save(feature string, u *WorkUnit) error {
	data, err := Encode(u)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", u.ID, err)
	}

	path := u.Path
	if path == "" {
		dir := s.TasksDir(feature)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating tasks directory: %w", err)
		}
		name := u.ID + ".md"
		if slug := fileSlug(u.Title); slug != "" {
			name = u.ID + "-" + slug + ".md"
		}
		path = filepath.Join(dir, name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing record: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting record permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing record: %w", err)
	}

	u.Path = path
	s.logger.Debug("saved work unit",
		zap.String("feature", feature),
		zap.String("unit", u.ID),
		zap.String("lane", u.Lane.String()),
	)
	return nil
}

func (s *Store) loadFile(path string) (*WorkUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", path, err)
	}
	u, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", path, err)
	}
	u.Path = path
	return u, nil
}

// findPath locates the record file for a unit id. Files are matched on the
// exact id (WP03.md) or on an id prefix followed by a slug (WP03-parser.md),
// never on a bare prefix, so WP1 does not match WP10-foo.md.
func (s *Store) findPath(feature, unitID string) (string, error) {
	dir := s.TasksDir(feature)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Feature: feature, UnitID: unitID}
		}
		return "", fmt.Errorf("reading tasks directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		base := strings.TrimSuffix(name, ".md")
		if base == unitID || strings.HasPrefix(base, unitID+"-") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", &NotFoundError{Feature: feature, UnitID: unitID}
}

// CompareIDs orders unit ids by their numeric component (WP2 before WP10),
// falling back to plain string comparison for ids outside the WP<number>
// shape.
func CompareIDs(a, b string) int {
	an, aok := idNumber(a)
	bn, bok := idNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return strings.Compare(a, b)
		}
	}
	return strings.Compare(a, b)
}

func idNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, "WP") {
		return 0, false
	}
	n, err := strconv.Atoi(id[2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// fileSlug turns a title into a filename-safe slug.
func fileSlug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
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
