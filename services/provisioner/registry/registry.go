// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry tracks in-flight and recently finished runs.
//
// Each provisioning or cleanup run is registered here under its session ID.
// Handlers poll the registry for progress, WebSocket clients subscribe to
// push updates, and the sweeper retires entries whose artifacts have been
// deleted.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StaleAfter is how long a run may go without an update before a poll
// reports it as timed out. Long DevRev or LLM calls post progress at
// stage boundaries, which is well inside this window.
const StaleAfter = 5 * time.Minute

// staleStatus is the status text shown for a timed-out run.
const staleStatus = "Error: operation timed out"

// RunKind distinguishes the two run flavors.
type RunKind string

const (
	// KindGenerate is a full org provisioning run.
	KindGenerate RunKind = "generate"

	// KindCleanup is a staged teardown run.
	KindCleanup RunKind = "cleanup"
)

// RunState is a point-in-time snapshot of one run.
type RunState struct {
	SessionID string    `json:"session_id"`
	Kind      RunKind   `json:"kind"`
	Progress  int       `json:"progress"`
	Status    string    `json:"status"`
	Complete  bool      `json:"complete"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// runEntry is the mutable record behind a RunState snapshot.
type runEntry struct {
	state       RunState
	cancel      context.CancelFunc
	subscribers map[int]chan RunState
	nextSubID   int
}

// Registry is the in-memory run store.
//
// # Description
//
// Runs are created with Begin, driven by Update/Finish/Fail from the
// pipeline goroutine, and read by handlers via Get or Subscribe. A run
// that stops posting updates for StaleAfter is marked timed out on the
// next read, matching what an operator watching the progress bar would
// conclude anyway.
//
// # Thread Safety
//
// Safe for concurrent use. All state lives behind a single mutex; the
// critical sections are small and never block on subscriber channels.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*runEntry

	// now is swappable for staleness tests.
	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]*runEntry),
		now:  time.Now,
	}
}

// Begin registers a new run and returns its session ID.
//
// The cancel func, if non-nil, is invoked by Cancel to stop the run's
// goroutine. Passing nil is allowed for runs that cannot be interrupted.
func (r *Registry) Begin(kind RunKind, cancel context.CancelFunc) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	r.runs[id] = &runEntry{
		state: RunState{
			SessionID: id,
			Kind:      kind,
			Status:    "Initializing...",
			StartedAt: now,
			UpdatedAt: now,
		},
		cancel:      cancel,
		subscribers: make(map[int]chan RunState),
	}
	return id
}

// Update posts a progress report for a run.
//
// Progress is clamped so it never moves backwards and never exceeds 100.
// Unknown session IDs are ignored; the run may already have been swept.
func (r *Registry) Update(sessionID, status string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[sessionID]
	if !ok {
		return
	}

	if progress < entry.state.Progress {
		progress = entry.state.Progress
	}
	if progress > 100 {
		progress = 100
	}

	entry.state.Progress = progress
	entry.state.Status = status
	entry.state.UpdatedAt = r.now()
	r.publishLocked(entry)
}

// Finish marks a run complete at 100 percent.
func (r *Registry) Finish(sessionID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[sessionID]
	if !ok {
		return
	}

	entry.state.Progress = 100
	entry.state.Status = status
	entry.state.Complete = true
	entry.state.UpdatedAt = r.now()
	r.publishLocked(entry)
}

// Fail records a run error. The run stays incomplete so clients can
// distinguish "failed" from "finished".
func (r *Registry) Fail(sessionID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[sessionID]
	if !ok {
		return
	}

	entry.state.Error = err.Error()
	entry.state.Status = "Error: " + err.Error()
	entry.state.UpdatedAt = r.now()
	r.publishLocked(entry)
}

// Get returns a snapshot of one run.
//
// A run with no update for StaleAfter is marked timed out before the
// snapshot is taken, so pollers see the timeout rather than a progress
// bar frozen forever.
func (r *Registry) Get(sessionID string) (RunState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[sessionID]
	if !ok {
		return RunState{}, false
	}

	if !entry.state.Complete && entry.state.Error == "" &&
		r.now().Sub(entry.state.UpdatedAt) > StaleAfter {
		entry.state.Error = "operation timed out"
		entry.state.Status = staleStatus
		r.publishLocked(entry)
	}

	return entry.state, true
}

// Subscribe returns a channel carrying state snapshots for a run.
//
// # Description
//
// The channel holds the latest snapshot only: a slow reader misses
// intermediate states, never blocks the pipeline. The current state is
// delivered immediately. The returned stop func must be called when the
// subscriber is done.
//
// # Outputs
//
//   - <-chan RunState: Snapshot stream, closed when the run is removed.
//   - func(): Unsubscribe.
//   - bool: False if the session ID is unknown.
func (r *Registry) Subscribe(sessionID string) (<-chan RunState, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[sessionID]
	if !ok {
		return nil, nil, false
	}

	ch := make(chan RunState, 1)
	id := entry.nextSubID
	entry.nextSubID++
	entry.subscribers[id] = ch
	ch <- entry.state

	stop := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.runs[sessionID]; ok {
			if sub, live := e.subscribers[id]; live {
				delete(e.subscribers, id)
				close(sub)
			}
		}
	}
	return ch, stop, true
}

// Cancel invokes the run's cancel func, if one was registered.
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	entry, ok := r.runs[sessionID]
	var cancel context.CancelFunc
	if ok {
		cancel = entry.cancel
	}
	r.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Remove deletes a run and closes its subscriber channels.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[sessionID]
	if !ok {
		return
	}
	for id, ch := range entry.subscribers {
		delete(entry.subscribers, id)
		close(ch)
	}
	delete(r.runs, sessionID)
}

// Len returns the number of tracked runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// publishLocked pushes the current state to all subscribers.
// Callers must hold r.mu. Channels keep only the latest snapshot.
func (r *Registry) publishLocked(entry *runEntry) {
	for _, ch := range entry.subscribers {
		select {
		case ch <- entry.state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- entry.state:
			default:
			}
		}
	}
}
