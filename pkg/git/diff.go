package git

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Hunk is one changed region from a unified diff. Start and Lines
// describe the region on the old (base) side, so hunks from different
// branches diffed against a common base can be compared directly.
type Hunk struct {
	Start int
	Lines int
}

// End returns the last base line the hunk touches. Pure insertions
// (Lines == 0) occupy the position after Start.
func (h Hunk) End() int {
	if h.Lines == 0 {
		return h.Start
	}
	return h.Start + h.Lines - 1
}

// Overlaps reports whether two hunks touch intersecting base regions.
func (h Hunk) Overlaps(other Hunk) bool {
	return h.Start <= other.End() && other.Start <= h.End()
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+\d+(?:,\d+)? @@`)

// DiffHunks returns the changed regions of one file between base and
// ref, positioned on the base side.
func (c *Client) DiffHunks(ctx context.Context, base, ref, file string) ([]Hunk, error) {
	out, err := c.run(ctx, "", "diff", "-U0", base, ref, "--", file)
	if err != nil {
		return nil, err
	}
	return parseHunks(out)
}

// parseHunks extracts hunk headers from unified diff output.
func parseHunks(diff string) ([]Hunk, error) {
	var hunks []Hunk
	for _, line := range strings.Split(diff, "\n") {
		m := hunkHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("parsing hunk header %q: %w", line, err)
		}
		lines := 1
		if m[2] != "" {
			if lines, err = strconv.Atoi(m[2]); err != nil {
				return nil, fmt.Errorf("parsing hunk header %q: %w", line, err)
			}
		}
		hunks = append(hunks, Hunk{Start: start, Lines: lines})
	}
	return hunks, nil
}
