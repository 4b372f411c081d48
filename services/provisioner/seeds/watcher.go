// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package seeds

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for edits to settle
// before reloading. Editors often write a CSV in several bursts.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads seed pools when the CSV files change.
//
// # Description
//
// Watches the seed directory (non-recursive; the layout is flat) and
// batches change events through a debounce window. When the window
// expires the loader re-reads all three pools and the result replaces
// the snapshot. Running pipelines are unaffected: they capture a Set
// at start and never see a half-reloaded view.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads happen on a single goroutine.
type Watcher struct {
	dir      string
	loader   *Loader
	snap     *Snapshot
	watcher  *fsnotify.Watcher
	debounce time.Duration

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher that feeds reloads into snap.
func NewWatcher(dir string, loader *Loader, snap *Snapshot) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		loader:   loader,
		snap:     snap,
		watcher:  fsw,
		debounce: DefaultDebounce,
		changes:  make(chan string, 64),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the seed directory.
//
// Spawns two goroutines, one converting fsnotify events and one running
// the debounce loop. Both exit when Stop is called or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// processEvents filters fsnotify events down to seed CSV changes.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			if _, tracked := columnFor[name]; !tracked {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			select {
			case w.changes <- name:
			default:
				// Buffer full; a reload is already pending
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("seed watcher error", "error", err)
		}
	}
}

// debounceLoop coalesces change bursts into a single reload.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var pending bool
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if pending {
			w.reload()
			pending = false
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case name := <-w.changes:
			slog.Debug("seed file changed", "file", name)
			pending = true

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			flush()
		}
	}
}

// reload re-reads all pools and swaps them into the snapshot.
func (w *Watcher) reload() {
	set, err := w.loader.Load()
	if err != nil {
		slog.Warn("seed reload failed, keeping previous pools", "error", err)
		return
	}

	w.snap.Replace(set)
	slog.Info("seed pools reloaded",
		"dev_users", len(set.DevUsers),
		"accounts", len(set.Accounts),
		"rev_users", len(set.RevUsers))
}
