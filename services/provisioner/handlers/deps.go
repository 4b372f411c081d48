// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinterlante1206/DemoForge/services/provisioner/pipeline"
	"github.com/jinterlante1206/DemoForge/services/provisioner/registry"
	"github.com/jinterlante1206/DemoForge/services/provisioner/session"
)

// RunFunc executes one run end to end for an already-registered session.
// Implementations build the pipeline and drive it; the front door only
// launches and tracks them.
type RunFunc func(ctx context.Context, sessionID string, params pipeline.Params) error

// Deps carries the front door's dependencies. Handlers are closures over
// a Deps value, so tests can stub the run functions and point the store
// at a temp directory.
type Deps struct {
	Registry *registry.Registry
	Store    *session.Store

	RunProvision RunFunc
	RunCleanup   RunFunc

	// RetainFor is how long run artifacts stay on disk after the run
	// ends. Zero means one hour.
	RetainFor time.Duration
}

func (d Deps) retainFor() time.Duration {
	if d.RetainFor > 0 {
		return d.RetainFor
	}
	return time.Hour
}

// launchRun starts the run goroutine for a registered session.
//
// The goroutine owns the run lifecycle: a panic or error marks the run
// failed, success marks it complete, and either way the session's
// artifacts are deleted once the retention window passes. The sweeper
// retires the registry entry after the artifacts are gone.
func (d Deps) launchRun(ctx context.Context, cancel context.CancelFunc, sessionID, doneStatus string, run RunFunc, params pipeline.Params) {
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("run panicked", "session_id", sessionID, "panic", r)
				d.Registry.Fail(sessionID, fmt.Errorf("internal error: %v", r))
			}
			time.AfterFunc(d.retainFor(), func() {
				if err := d.Store.Delete(sessionID); err != nil {
					slog.Warn("session retirement failed", "session_id", sessionID, "error", err)
				}
			})
		}()

		if err := run(ctx, sessionID, params); err != nil {
			slog.Error("run failed", "session_id", sessionID, "error", err)
			d.Registry.Fail(sessionID, err)
			return
		}
		d.Registry.Finish(sessionID, doneStatus)
	}()
}
