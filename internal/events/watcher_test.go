package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher_PublishesRecordChanges(t *testing.T) {
	bus := newTestBus(t)

	specs := t.TempDir()
	tasks := filepath.Join(specs, "user-auth", "tasks")
	require.NoError(t, os.MkdirAll(tasks, 0o755))

	w, err := NewWatcher(WatcherConfig{
		SpecsDir: specs,
		Bus:      bus,
		Debounce: 50 * time.Millisecond,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	ch := make(chan *nats.Msg, 4)
	sub, err := bus.Subscribe("user-auth", ch)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	// Give the watcher a moment to register its directories.
	time.Sleep(100 * time.Millisecond)

	record := filepath.Join(tasks, "WP01-login-form.md")
	require.NoError(t, os.WriteFile(record, []byte("---\nwork_package_id: WP01\n---\n"), 0o644))

	msg := receive(t, ch)
	assert.Equal(t, RecordSubject("user-auth"), msg.Subject)

	var ev RecordEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "WP01", ev.UnitID)
	assert.Equal(t, "user-auth", ev.Feature)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	bus := newTestBus(t)

	specs := t.TempDir()
	tasks := filepath.Join(specs, "user-auth", "tasks")
	require.NoError(t, os.MkdirAll(tasks, 0o755))

	w, err := NewWatcher(WatcherConfig{
		SpecsDir: specs,
		Bus:      bus,
		Debounce: 150 * time.Millisecond,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	ch := make(chan *nats.Msg, 16)
	sub, err := bus.Subscribe("user-auth", ch)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	time.Sleep(100 * time.Millisecond)

	record := filepath.Join(tasks, "WP02-session.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(record, []byte("---\nlane: doing\n---\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	receive(t, ch)
	select {
	case <-ch:
		t.Fatal("burst produced more than one event")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	w := &Watcher{specsDir: "/specs"}

	cases := []struct {
		path string
		ok   bool
	}{
		{"/specs/user-auth/tasks/WP01-login.md", true},
		{"/specs/user-auth/tasks/WP01-login.md.tmp", false},
		{"/specs/user-auth/spec.md", false},
		{"/specs/user-auth/tasks/notes.md", false},
		{"/specs/top-level.md", false},
	}
	for _, tc := range cases {
		_, _, ok := w.classify(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
	}
}

func TestNewWatcher_RequiredConfig(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{Bus: &Bus{}})
	require.Error(t, err)

	_, err = NewWatcher(WatcherConfig{SpecsDir: "/tmp"})
	require.Error(t, err)
}
