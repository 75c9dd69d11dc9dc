package workunit

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Frontmatter parsing errors.
var (
	ErrMissingHeader   = errors.New("record has no header block")
	ErrMalformedHeader = errors.New("record header is malformed")
)

var fence = []byte("---\n")

// unitHeader is the wire shape of the YAML header block. Field order here is
// the order fields are written to disk.
type unitHeader struct {
	WorkPackageID string         `yaml:"work_package_id"`
	Title         string         `yaml:"title,omitempty"`
	Lane          string         `yaml:"lane"`
	Dependencies  []string       `yaml:"dependencies"`
	BaseBranch    string         `yaml:"base_branch,omitempty"`
	ReviewStatus  string         `yaml:"review_status,omitempty"`
	Owner         string         `yaml:"owner,omitempty"`
	History       []HistoryEntry `yaml:"history,omitempty"`
}

// knownHeaderFields are the keys this engine interprets. Everything else in
// the header survives load/save untouched via WorkUnit.Extra.
var knownHeaderFields = map[string]struct{}{
	"work_package_id": {},
	"title":           {},
	"lane":            {},
	"dependencies":    {},
	"base_branch":     {},
	"review_status":   {},
	"owner":           {},
	"history":         {},
}

// Decode parses a persisted unit record into a WorkUnit.
//
// The record must start with a `---` fence, carry a YAML mapping, and close
// with a second `---` fence. Everything after the closing fence is the body,
// kept byte-for-byte.
func Decode(data []byte) (*WorkUnit, error) {
	data = normalizeNewlines(data)

	if !bytes.HasPrefix(data, fence) {
		return nil, ErrMissingHeader
	}
	rest := data[len(fence):]

	end := bytes.Index(rest, []byte("\n---"))
	var headerBytes, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---")):
		// Empty header block
		return nil, fmt.Errorf("%w: empty header", ErrMalformedHeader)
	case end >= 0:
		headerBytes = rest[:end+1]
		body = rest[end+len("\n---"):]
		// Drop the newline terminating the closing fence line, if present
		body = bytes.TrimPrefix(body, []byte("\n"))
	default:
		return nil, fmt.Errorf("%w: closing fence not found", ErrMalformedHeader)
	}

	var hdr unitHeader
	if err := yaml.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	lane, err := ParseLane(hdr.Lane)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	// Second pass collects the fields we do not interpret.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	extra := make(map[string]interface{})
	for k, v := range raw {
		if _, known := knownHeaderFields[k]; !known {
			extra[k] = v
		}
	}

	u := &WorkUnit{
		ID:           hdr.WorkPackageID,
		Title:        hdr.Title,
		Lane:         lane,
		Dependencies: hdr.Dependencies,
		BaseBranch:   hdr.BaseBranch,
		ReviewStatus: hdr.ReviewStatus,
		Owner:        hdr.Owner,
		History:      hdr.History,
		Body:         string(body),
		Extra:        extra,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Encode serializes a WorkUnit back into record bytes. Interpreted fields are
// written in a fixed order; uninterpreted fields follow, key-sorted.
func Encode(u *WorkUnit) ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	hdr := unitHeader{
		WorkPackageID: u.ID,
		Title:         u.Title,
		Lane:          u.Lane.String(),
		Dependencies:  u.Dependencies,
		BaseBranch:    u.BaseBranch,
		ReviewStatus:  u.ReviewStatus,
		Owner:         u.Owner,
		History:       u.History,
	}
	if hdr.Dependencies == nil {
		hdr.Dependencies = []string{}
	}

	headerBytes, err := yaml.Marshal(&hdr)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(fence)
	buf.Write(headerBytes)
	if len(u.Extra) > 0 {
		extraBytes, err := yaml.Marshal(u.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshaling extra header fields: %w", err)
		}
		buf.Write(extraBytes)
	}
	buf.Write(fence)
	buf.WriteString(u.Body)
	return buf.Bytes(), nil
}

// normalizeNewlines converts CRLF line endings to LF so fence detection works
// on records written from any platform.
func normalizeNewlines(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}
