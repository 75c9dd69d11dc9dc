package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces editor write bursts on one record file.
const DefaultDebounce = 250 * time.Millisecond

// Watcher republishes task-record file changes to the bus so SSE
// clients and the board refresh without polling.
//
// It watches kitty-specs/ itself plus every feature's tasks/ directory,
// and picks up tasks/ directories created after startup. fsnotify does
// not recurse, so each directory is registered individually.
type Watcher struct {
	specsDir string
	bus      *Bus
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// SpecsDir is the kitty-specs directory to watch.
	SpecsDir string

	// Bus receives the record events. Required.
	Bus *Bus

	// Debounce coalesces bursts of notifications for the same file.
	// Zero means DefaultDebounce.
	Debounce time.Duration

	Logger *zap.Logger
}

// NewWatcher validates the config and returns a watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.SpecsDir == "" {
		return nil, errors.New("specs directory is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Watcher{
		specsDir: cfg.SpecsDir,
		bus:      cfg.Bus,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.specsDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.specsDir, err)
	}
	if err := w.addExistingTaskDirs(fsw); err != nil {
		return err
	}

	w.logger.Info("watching task records", zap.String("dir", w.specsDir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) addExistingTaskDirs(fsw *fsnotify.Watcher) error {
	entries, err := os.ReadDir(w.specsDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.specsDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Feature directories appear before their tasks/ child; both
		// are registered so records land either way.
		featureDir := filepath.Join(w.specsDir, entry.Name())
		if err := fsw.Add(featureDir); err != nil {
			w.logger.Warn("cannot watch feature directory", zap.String("dir", featureDir), zap.Error(err))
			continue
		}
		tasksDir := filepath.Join(featureDir, "tasks")
		if info, err := os.Stat(tasksDir); err == nil && info.IsDir() {
			if err := fsw.Add(tasksDir); err != nil {
				w.logger.Warn("cannot watch tasks directory", zap.String("dir", tasksDir), zap.Error(err))
			}
		}
	}
	return nil
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fsw.Add(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	featureSlug, unitID, ok := w.classify(event.Name)
	if !ok {
		return
	}
	w.schedule(featureSlug, unitID, event.Name)
}

// classify maps a path to its feature and unit; only
// <specs>/<feature>/tasks/WPnn-<slug>.md files produce events.
func (w *Watcher) classify(path string) (featureSlug, unitID string, ok bool) {
	rel, err := filepath.Rel(w.specsDir, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || parts[1] != "tasks" || !strings.HasSuffix(parts[2], ".md") {
		return "", "", false
	}
	name := strings.TrimSuffix(parts[2], ".md")
	unitID, _, _ = strings.Cut(name, "-")
	if !strings.HasPrefix(unitID, "WP") {
		return "", "", false
	}
	return parts[0], unitID, true
}

// schedule publishes after the debounce window; another change to the
// same file inside the window resets the timer.
func (w *Watcher) schedule(featureSlug, unitID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := featureSlug + "/" + unitID
	if timer, exists := w.pending[key]; exists {
		timer.Reset(w.debounce)
		return
	}
	w.pending[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()
		w.bus.RecordChanged(featureSlug, unitID, path)
	})
}
