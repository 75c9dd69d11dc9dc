// Package auth identifies the agents calling into the coordinator and
// guards the HTTP surface with shared API keys.
//
// Actors are free-form names ("claude-frontend", "reviewer-2") recorded
// in work-package history; DeriveActorID gives each one a stable opaque
// identifier usable as a rate-limit or subscription key without leaking
// the name.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os/user"
)

// ErrEmptyActor is returned when an actor name is empty.
var ErrEmptyActor = errors.New("actor name cannot be empty")

// FallbackActor names history entries when no identity is available at
// all.
const FallbackActor = "kittyd"

// DeriveActorID maps an actor name to a stable hex identifier.
//
// The mapping is SHA256(name): deterministic, collision-resistant, and
// one-way, so derived IDs can key shared state without exposing agent
// names.
func DeriveActorID(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyActor
	}
	hash := sha256.Sum256([]byte(name))
	return hex.EncodeToString(hash[:]), nil
}

// SystemActor resolves the local identity used when a caller does not
// announce one: the OS username, or FallbackActor when even that is
// unavailable.
func SystemActor() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return FallbackActor
	}
	return u.Username
}
