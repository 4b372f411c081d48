// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jinterlante1206/DemoForge/services/provisioner/session"
)

// SessionStore is the slice of the artifact store the sweeper needs.
type SessionStore interface {
	Sessions() ([]session.Info, error)
	Delete(sessionID string) error
}

// SweeperConfig holds configuration for the background sweep.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 1 hour.
//   - MaxAge: Sessions untouched for longer than this are deleted.
//     Default: 1 hour.
type SweeperConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// DefaultSweeperConfig returns production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 1 * time.Hour,
		MaxAge:   1 * time.Hour,
	}
}

// Sweeper deletes stale session directories and retires their runs.
//
// # Description
//
// Runs a sweep at a fixed interval using the ticker + done channel
// pattern. Each sweep lists stored sessions, deletes those whose
// directory has not been touched for MaxAge, and removes the matching
// registry entries so the run map cannot grow without bound.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Sweeper struct {
	store    SessionStore
	registry *Registry
	config   SweeperConfig
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper over the given store and registry.
func NewSweeper(store SessionStore, reg *Registry, config SweeperConfig) *Sweeper {
	return &Sweeper{
		store:    store,
		registry: reg,
		config:   config,
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// An initial sweep runs immediately so a restart clears anything that
// went stale while the service was down. Returns an error if the
// sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("session sweeper starting",
		"interval", s.config.Interval.String(),
		"max_age", s.config.MaxAge.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop stops the sweeper. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.done)
	s.running = false
}

// RunNow performs one sweep immediately and returns the deletion count.
func (s *Sweeper) RunNow() (int, error) {
	return s.sweep()
}

// runLoop runs sweeps until stopped.
func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeSweep()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("session sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep()
		}
	}
}

// executeSweep wraps sweep with logging so a failure never kills the loop.
func (s *Sweeper) executeSweep() {
	deleted, err := s.sweep()
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("session sweep completed", "deleted", deleted)
	} else {
		slog.Debug("session sweep completed (nothing stale)")
	}
}

// sweep deletes sessions older than MaxAge.
func (s *Sweeper) sweep() (int, error) {
	infos, err := s.store.Sessions()
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	cutoff := time.Now().Add(-s.config.MaxAge)
	deleted := 0
	for _, info := range infos {
		if info.ModTime.After(cutoff) {
			continue
		}
		if err := s.store.Delete(info.ID); err != nil {
			slog.Warn("failed to delete stale session", "session_id", info.ID, "error", err)
			continue
		}
		s.registry.Remove(info.ID)
		deleted++
	}
	return deleted, nil
}
