package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// allowlistFile is the per-repository allowlist, relative to the root.
const allowlistFile = ".kittify/allowlist.toml"

// Allowlist carries path and content patterns excluded from detection.
type Allowlist struct {
	Paths   []string // file path regex patterns to ignore
	Regexes []string // content regex patterns to ignore
}

// LoadAllowlists merges the repository allowlist with an optional
// user-level one. Missing files are fine; present-but-broken files are
// errors.
//
// root is the repository root holding .kittify/allowlist.toml (empty
// to skip); userPath is a full path to a user allowlist (empty to
// skip).
func LoadAllowlists(root, userPath string) (*Allowlist, error) {
	merged := &Allowlist{}

	if root != "" {
		project, err := loadTOML(filepath.Join(root, filepath.FromSlash(allowlistFile)))
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if project != nil {
			merged.Paths = append(merged.Paths, project.Paths...)
			merged.Regexes = append(merged.Regexes, project.Regexes...)
		}
	}

	if userPath != "" {
		user, err := loadTOML(userPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if user != nil {
			merged.Paths = append(merged.Paths, user.Paths...)
			merged.Regexes = append(merged.Regexes, user.Regexes...)
		}
	}

	return merged, nil
}

// loadTOML reads one allowlist file and fails fast on patterns that do
// not compile, so bad patterns surface at load time rather than inside
// the detector.
func loadTOML(path string) (*Allowlist, error) {
	var config struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range config.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: path pattern %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range config.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: content pattern %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   config.Allowlist.Paths,
		Regexes: config.Allowlist.Regexes,
	}, nil
}
