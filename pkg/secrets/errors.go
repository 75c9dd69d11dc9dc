// Package secrets detects and redacts credentials in agent-authored
// text using the Gitleaks SDK, so that notes and review remarks never
// carry live secrets into work-package records or out over the event
// stream.
package secrets

import "errors"

var (
	// ErrInvalidRegex indicates a regex pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates a TOML file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
