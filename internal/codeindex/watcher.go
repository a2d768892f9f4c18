package codeindex

import (
	"context"
	"time"

	"github.com/context-fabric/contextfabric/internal/watcher"
)

// FileEvent is aliased, and the Op constants re-exported, from the shared
// watcher package so
// codeindex.Index can consume its debounced fsnotify/polling hybrid
// implementation (internal/watcher/hybrid.go) without re-deriving fsnotify
// plumbing or the CREATE/MODIFY/DELETE coalescing rules.
type FileEvent = watcher.FileEvent

const (
	OpCreate = watcher.OpCreate
	OpModify = watcher.OpModify
	OpDelete = watcher.OpDelete
	OpRename = watcher.OpRename
)

// Watcher wraps the shared HybridWatcher with the debounce window and
// gitignore-aware ignore rules a code index needs (spec §5: "a single
// file-watcher per code index (optional)").
type Watcher struct {
	inner *watcher.HybridWatcher
}

// NewWatcher creates a watcher with the given debounce window. A
// non-positive window falls back to the shared package's default (200ms).
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	opts := watcher.DefaultOptions()
	if debounce > 0 {
		opts.DebounceWindow = debounce
	}
	hw, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return nil, err
	}
	return &Watcher{inner: hw}, nil
}

// Start begins watching rootPath. Runs until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context, rootPath string) error {
	go func() {
		_ = w.inner.Start(ctx, rootPath)
	}()
	return nil
}

// Output returns the channel of debounced, coalesced file-event batches.
func (w *Watcher) Output() <-chan []FileEvent {
	return w.inner.Events()
}

// Stop releases the underlying watcher's resources.
func (w *Watcher) Stop() error {
	return w.inner.Stop()
}
