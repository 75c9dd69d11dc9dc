package lock

import (
	"errors"
	"syscall"
)

// ProcessChecker answers whether a pid belongs to a running process.
//
// Stale-lock reclamation depends on this check; it is an interface so tests
// can simulate dead owners without spawning processes.
type ProcessChecker interface {
	IsProcessAlive(pid int) bool
}

// SystemChecker checks liveness against the local process table.
type SystemChecker struct{}

// IsProcessAlive probes the pid with signal 0. ESRCH means no such process;
// EPERM means the process exists but belongs to another user, which still
// counts as alive.
func (SystemChecker) IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) {
		return false
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
