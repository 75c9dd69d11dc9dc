// Package lock provides advisory, filesystem-resident mutual exclusion for
// the shared metadata of a feature: unit records, merge sessions, and
// configuration.
//
// A lock is a marker file in the lock directory named .lock-<resource-id>,
// carrying the owner's pid, hostname, and acquisition time. Locks are
// cooperative; nothing stops a process that does not use this package from
// touching the guarded files. A marker whose owner process is no longer alive
// is reclaimed by the next acquirer, and markers older than twice their
// timeout are swept regardless of owner, so a crashed worker never wedges the
// feature.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds how long Acquire waits before giving up.
const DefaultTimeout = 5 * time.Minute

// pollInterval is how often a blocked Acquire re-examines the marker.
const pollInterval = 200 * time.Millisecond

// markerPrefix prefixes every lock file name.
const markerPrefix = ".lock-"

// Resource id constructors, one per granularity the engine locks at.

// UnitResource is the lock id guarding one work package's record.
func UnitResource(unitID string) string { return "WP-" + unitID }

// FeatureResource is the lock id guarding feature-wide operations such as a
// merge session.
func FeatureResource(slug string) string { return "feature-" + slug }

// ConfigResource is the lock id guarding a shared configuration file.
func ConfigResource(name string) string { return "config-" + name }

// Owner describes who holds (or held) a lock marker.
type Owner struct {
	ResourceID string    `json:"resource_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	Timeout    int       `json:"timeout_seconds"`
}

// TimeoutError reports a lock that stayed held for the whole wait window.
// Callers should treat it as retryable, not fatal.
type TimeoutError struct {
	ResourceID string
	Owner      Owner
	Elapsed    time.Duration
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %s: timed out after %s (limit %s); held by pid %d on %s since %s",
		e.ResourceID, e.Elapsed.Round(time.Millisecond), e.Timeout,
		e.Owner.PID, e.Owner.Hostname, e.Owner.AcquiredAt.Format(time.RFC3339))
}

// Notifier observes stale-lock reclamations. Implementations must not
// block the acquisition path.
type Notifier interface {
	LockReclaimed(ctx context.Context, resourceID, reason string)
}

// Manager acquires and releases locks under one lock directory.
type Manager struct {
	dir      string
	checker  ProcessChecker
	logger   *zap.Logger
	metrics  *Metrics
	notifier Notifier
	hostname string
	pid      int
}

// NewManager creates a Manager for the given lock directory.
//
// A nil checker defaults to the local process table; a nil logger is replaced
// with a no-op logger.
func NewManager(dir string, checker ProcessChecker, logger *zap.Logger) *Manager {
	if checker == nil {
		checker = SystemChecker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Manager{
		dir:      dir,
		checker:  checker,
		logger:   logger,
		metrics:  newMetrics(logger),
		hostname: hostname,
		pid:      os.Getpid(),
	}
}

// SetNotifier registers an observer for reclamation events. Call before
// the manager is shared between goroutines.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// Lease is a held lock. Release it exactly once; extra calls are harmless.
type Lease struct {
	m          *Manager
	resourceID string
	owner      Owner
}

// Release removes the lock marker. Safe to call when the marker is already
// gone.
func (l *Lease) Release() error { return l.m.Release(l.resourceID) }

// Owner returns the recorded ownership of this lease.
func (l *Lease) Owner() Owner { return l.owner }

// Acquire takes the lock for resourceID, waiting up to timeout for the
// current holder to release it. A non-positive timeout means DefaultTimeout.
//
// An existing marker whose owner process is dead (same host) or whose content
// is unreadable is reclaimed in place; the reclamation is logged and counted,
// never surfaced as an error. If the holder stays alive past the deadline the
// call fails with TimeoutError naming the holder and the time waited.
func (m *Manager) Acquire(ctx context.Context, resourceID string, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)
	var lastOwner Owner

	for {
		lease, err := m.tryAcquire(resourceID, timeout)
		if err == nil {
			m.metrics.recordWait(ctx, resourceID, time.Since(start))
			return lease, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquiring lock %s: %w", resourceID, err)
		}

		owner, readErr := m.readOwner(resourceID)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				// Holder released between our create attempt and the read.
				continue
			}
			// A marker that never got its owner record written can only be a
			// torn write; give the writer a moment, then take it over.
			if m.markerAge(resourceID) > time.Second {
				m.reclaim(ctx, resourceID, "unreadable marker")
				continue
			}
		} else {
			lastOwner = owner

			if m.ownerDead(owner) {
				m.reclaim(ctx, resourceID, fmt.Sprintf("owner pid %d is not running", owner.PID))
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, &TimeoutError{
				ResourceID: resourceID,
				Owner:      lastOwner,
				Elapsed:    time.Since(start),
				Timeout:    timeout,
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring lock %s: %w", resourceID, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Release removes the marker for resourceID. Idempotent.
func (m *Manager) Release(resourceID string) error {
	err := os.Remove(m.markerPath(resourceID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing lock %s: %w", resourceID, err)
	}
	return nil
}

// Holder reports the current owner of resourceID, if any marker exists.
func (m *Manager) Holder(resourceID string) (Owner, bool, error) {
	owner, err := m.readOwner(resourceID)
	if err != nil {
		if os.IsNotExist(err) {
			return Owner{}, false, nil
		}
		return Owner{}, false, err
	}
	return owner, true, nil
}

// List returns the owners of every marker in the lock directory, sorted by
// resource id.
func (m *Manager) List() ([]Owner, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock directory: %w", err)
	}
	var owners []Owner
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, markerPrefix) {
			continue
		}
		owner, err := m.readOwner(strings.TrimPrefix(name, markerPrefix))
		if err != nil {
			continue
		}
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].ResourceID < owners[j].ResourceID })
	return owners, nil
}

// Sweep removes markers whose owner is dead or whose age exceeds twice their
// recorded timeout, and returns the resource ids that were reclaimed.
func (m *Manager) Sweep(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock directory: %w", err)
	}

	var reclaimed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, markerPrefix) {
			continue
		}
		resourceID := strings.TrimPrefix(name, markerPrefix)

		owner, err := m.readOwner(resourceID)
		if err != nil {
			m.reclaim(ctx, resourceID, "unreadable marker")
			reclaimed = append(reclaimed, resourceID)
			continue
		}

		timeout := time.Duration(owner.Timeout) * time.Second
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		age := time.Since(owner.AcquiredAt)

		switch {
		case m.ownerDead(owner):
			m.reclaim(ctx, resourceID, fmt.Sprintf("owner pid %d is not running", owner.PID))
			reclaimed = append(reclaimed, resourceID)
		case age > 2*timeout:
			m.reclaim(ctx, resourceID, fmt.Sprintf("marker age %s exceeds twice its %s timeout", age.Round(time.Second), timeout))
			reclaimed = append(reclaimed, resourceID)
		}
	}
	sort.Strings(reclaimed)
	return reclaimed, nil
}

func (m *Manager) tryAcquire(resourceID string, timeout time.Duration) (*Lease, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	path := m.markerPath(resourceID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	owner := Owner{
		ResourceID: resourceID,
		PID:        m.pid,
		Hostname:   m.hostname,
		AcquiredAt: time.Now().UTC(),
		Timeout:    int(timeout / time.Second),
	}
	data, err := json.Marshal(owner)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("encoding lock owner: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing lock marker: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing lock marker: %w", err)
	}

	m.logger.Debug("acquired lock", zap.String("resource", resourceID))
	return &Lease{m: m, resourceID: resourceID, owner: owner}, nil
}

// ownerDead reports whether a marker's owner can be proven dead. Liveness is
// only observable for processes on this host; markers from other hosts age
// out via Sweep instead.
func (m *Manager) ownerDead(owner Owner) bool {
	if owner.Hostname != m.hostname {
		return false
	}
	return !m.checker.IsProcessAlive(owner.PID)
}

// reclaim removes a stale marker. Reclamation is logged for auditability but
// is not an error condition.
func (m *Manager) reclaim(ctx context.Context, resourceID, reason string) {
	if err := os.Remove(m.markerPath(resourceID)); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove stale lock",
			zap.String("resource", resourceID),
			zap.Error(err),
		)
		return
	}
	m.metrics.recordReclaim(ctx, resourceID)
	m.logger.Warn("reclaimed stale lock",
		zap.String("resource", resourceID),
		zap.String("reason", reason),
	)
	if m.notifier != nil {
		m.notifier.LockReclaimed(ctx, resourceID, reason)
	}
}

func (m *Manager) markerPath(resourceID string) string {
	return filepath.Join(m.dir, markerPrefix+resourceID)
}

// markerAge returns how long ago the marker was last written, or zero when it
// cannot be stat-ed.
func (m *Manager) markerAge(resourceID string) time.Duration {
	info, err := os.Stat(m.markerPath(resourceID))
	if err != nil {
		return 0
	}
	return time.Since(info.ModTime())
}

// readOwner decodes the marker for resourceID.
func (m *Manager) readOwner(resourceID string) (Owner, error) {
	data, err := os.ReadFile(m.markerPath(resourceID))
	if err != nil {
		return Owner{}, err
	}
	var owner Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return Owner{}, fmt.Errorf("decoding lock marker %s: %w", resourceID, err)
	}
	return owner, nil
}
