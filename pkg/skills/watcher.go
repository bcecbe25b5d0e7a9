// SPDX-License-Identifier: Apache-2.0
package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls the skills directory for manifest changes and invokes a
// reload callback when one is detected. It catches added, edited, and
// removed skills without requiring an explicit reload_skills call.
type Watcher struct {
	mu          sync.Mutex
	dir         string
	interval    time.Duration
	lastModTime map[string]time.Time
	onChange    func(context.Context)
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for manifest changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher over the skills directory. The onChange
// callback runs on the watcher goroutine whenever a manifest appears,
// changes, or disappears.
func NewWatcher(dir string, onChange func(context.Context), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:         dir,
		interval:    5 * time.Second,
		lastModTime: make(map[string]time.Time),
		onChange:    onChange,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.mu.Lock()
	w.lastModTime = w.snapshot()
	w.mu.Unlock()
	return w
}

// Start begins watching for manifest changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				w.logger.Info("skill manifests changed, reloading")
				w.onChange(ctx)
			}
		}
	}
}

// checkForChanges compares current manifest mod times against the last
// snapshot. A vanished manifest counts as a change too.
func (w *Watcher) checkForChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.snapshot()
	changed := len(current) != len(w.lastModTime)
	if !changed {
		for path, mod := range current {
			last, seen := w.lastModTime[path]
			if !seen || mod.After(last) {
				changed = true
				break
			}
		}
	}
	w.lastModTime = current
	return changed
}

// snapshot stats every manifest under the skills directory.
func (w *Watcher) snapshot() map[string]time.Time {
	mods := make(map[string]time.Time)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return mods
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name(), manifestFile)
		if info, err := os.Stat(path); err == nil {
			mods[path] = info.ModTime()
		}
	}
	return mods
}
