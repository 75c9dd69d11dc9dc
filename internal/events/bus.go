// Package events fans lane transitions, merge outcomes, and record
// changes out over NATS.
//
// The bus is the produced side of the audit/event-log collaborator
// interface: anything that wants to reconstruct scheduler activity
// subscribes to the kitty.> subjects. kittyd itself consumes the bus
// for SSE streaming and the board TUI. By default the bus runs an
// embedded in-process NATS server; pointing it at an external URL
// changes nothing observable.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/pkg/merge"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// serverStartupTimeout bounds waiting for the embedded server to
// accept connections.
const serverStartupTimeout = 5 * time.Second

// Config configures the bus.
type Config struct {
	// URL connects to an external NATS server. Empty starts an
	// embedded one on a loopback port chosen by the OS.
	URL string

	Logger *zap.Logger
}

// Bus publishes scheduler events. Publishing is best-effort: a failed
// publish is logged and dropped, never surfaced to the operation that
// produced the event.
type Bus struct {
	server *natsserver.Server
	conn   *nats.Conn
	logger *zap.Logger
	newID  func() string
}

// NewBus starts (or connects to) the event transport.
func NewBus(cfg Config) (*Bus, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bus{logger: logger, newID: newEventID}

	url := cfg.URL
	if url == "" {
		srv, err := natsserver.NewServer(&natsserver.Options{
			Host:   "127.0.0.1",
			Port:   -1,
			NoLog:  true,
			NoSigs: true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedded nats server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(serverStartupTimeout) {
			srv.Shutdown()
			return nil, fmt.Errorf("embedded nats server not ready after %s", serverStartupTimeout)
		}
		b.server = srv
		url = srv.ClientURL()
	}

	conn, err := nats.Connect(url, nats.Name("kittyd"))
	if err != nil {
		if b.server != nil {
			b.server.Shutdown()
		}
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	b.conn = conn

	logger.Info("event bus ready",
		zap.String("url", url),
		zap.Bool("embedded", b.server != nil))
	return b, nil
}

// Conn exposes the underlying connection for subscribers.
func (b *Bus) Conn() *nats.Conn { return b.conn }

// Close drains the connection and stops the embedded server, if any.
func (b *Bus) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
}

// Subscribe delivers every event of one feature to ch.
func (b *Bus) Subscribe(featureSlug string, ch chan *nats.Msg) (*nats.Subscription, error) {
	return b.conn.ChanSubscribe(FeatureSubjects(featureSlug), ch)
}

// LaneChanged implements lane.Notifier.
func (b *Bus) LaneChanged(ctx context.Context, featureSlug string, unit *workunit.WorkUnit, from workunit.Lane) {
	b.publish(LaneSubject(featureSlug), LaneEvent{
		ID:        b.newID(),
		Feature:   featureSlug,
		UnitID:    unit.ID,
		From:      string(from),
		To:        string(unit.Lane),
		Actor:     lastActor(unit),
		Timestamp: time.Now(),
	})
}

// MergeCompleted implements merge.Notifier.
func (b *Bus) MergeCompleted(ctx context.Context, session *merge.Session) {
	ev := MergeEvent{
		ID:        b.newID(),
		Feature:   session.Feature,
		Target:    session.Target,
		Results:   make(map[string]string, len(session.Results)),
		Timestamp: time.Now(),
	}
	for id, res := range session.Results {
		ev.Results[id] = res.String()
	}
	if session.Conflict != nil {
		ev.Conflict = &ConflictInfo{
			UnitID: session.Conflict.UnitID,
			Branch: session.Conflict.Branch,
			Files:  session.Conflict.Files,
		}
	}
	b.publish(MergeSubject(session.Feature), ev)
}

// LockReclaimed implements lock.Notifier.
func (b *Bus) LockReclaimed(ctx context.Context, resourceID, reason string) {
	b.publish(ReclaimedSubject(), ReclaimEvent{
		ID:         b.newID(),
		ResourceID: resourceID,
		Reason:     reason,
		Timestamp:  time.Now(),
	})
}

// RecordChanged publishes a task-record file change.
func (b *Bus) RecordChanged(featureSlug, unitID, path string) {
	b.publish(RecordSubject(featureSlug), RecordEvent{
		ID:        b.newID(),
		Feature:   featureSlug,
		UnitID:    unitID,
		Path:      path,
		Timestamp: time.Now(),
	})
}

func (b *Bus) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to encode event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func newEventID() string { return uuid.New().String() }

// lastActor returns the actor of the newest history entry.
func lastActor(u *workunit.WorkUnit) string {
	if len(u.History) == 0 {
		return ""
	}
	return u.History[len(u.History)-1].Actor
}
