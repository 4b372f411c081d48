// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jinterlante1206/DemoForge/services/provisioner/observability"
)

// Cleanup stage indexes, in CleanupStages order.
const (
	cleanupParts = iota
	cleanupWorks
	cleanupRevUsers
	cleanupAccounts
	cleanupDevUsers
)

// protectedDevUserSuffix marks the tenant's bootstrap user, which must
// survive cleanup or the org locks everyone out.
const protectedDevUserSuffix = "devu/1"

// CleanupEntry tallies one object type's teardown.
type CleanupEntry struct {
	Total   int `json:"total"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`

	// Protected is set only for dev users, counting the bootstrap users
	// excluded from deletion.
	Protected *int `json:"protected,omitempty"`

	// Error records a listing failure for this type; deletion never ran.
	Error string `json:"error,omitempty"`
}

// CleanupStatus maps object type to its teardown tally. The cumulative
// status is re-journaled after every stage so an interrupted run still
// leaves an accurate ledger.
type CleanupStatus map[string]*CleanupEntry

// cleanupSpec binds one teardown stage to its object type and filter.
type cleanupSpec struct {
	stage      int
	objectType string
	statusKey  string
	metric     string
	label      string
	filter     func(entry *CleanupEntry, objects []map[string]interface{}) []string
}

// RunCleanup decommissions the tenant's demo content: parts, work items,
// customer users, accounts, and dev users, in dependency order.
//
// Stages are independent. A stage whose listing fails records the error
// on its entry and the run presses on; per-object delete failures are
// counted without aborting. Only cancellation stops a run early, and
// even then the status artifact reflects everything attempted.
func (p *Pipeline) RunCleanup(ctx context.Context) (err error) {
	start := time.Now()
	p.Metrics.RunStarted(observability.KindCleanup)
	defer func() {
		p.Metrics.RunEnded(observability.KindCleanup, time.Since(start).Seconds(), err == nil)
	}()

	status := CleanupStatus{
		"parts":     {},
		"works":     {},
		"rev_users": {},
		"accounts":  {},
		"dev_users": {Protected: intPtr(0)},
	}

	specs := []cleanupSpec{
		{cleanupParts, "parts", "parts", "part", "parts", deletableParts},
		{cleanupWorks, "works", "works", "work", "work items", allIDs},
		{cleanupRevUsers, "rev-users", "rev_users", "rev_user", "customer users", allIDs},
		{cleanupAccounts, "accounts", "accounts", "account", "accounts", allIDs},
		{cleanupDevUsers, "dev-users", "dev_users", "dev_user", "dev users", deletableDevUsers},
	}

	slog.Info("cleanup run started", "session_id", p.Params.SessionID())
	for _, spec := range specs {
		if err = p.runCleanupStage(ctx, spec, status); err != nil {
			p.journalCleanupStatus(status, err)
			return err
		}
		p.journalCleanupStatus(status, nil)
	}

	p.Tracker.Done("Cleanup process completed")
	slog.Info("cleanup run finished",
		"session_id", p.Params.SessionID(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// runCleanupStage lists one object type, journals the listing, and
// deletes what the filter admits. The returned error is non-nil only on
// cancellation; remote failures land in the status entry instead.
func (p *Pipeline) runCleanupStage(ctx context.Context, spec cleanupSpec, status CleanupStatus) error {
	entry := status[spec.statusKey]
	p.Tracker.Enter(spec.stage, "Loading "+spec.label+"...")

	objects, err := p.Client.ListAll(ctx, spec.objectType)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("cleanup listing failed", "object_type", spec.objectType, "error", err)
		entry.Error = err.Error()
		p.Tracker.Report(100, "Failed to load "+spec.label)
		return nil
	}
	if len(objects) > 0 {
		p.journal(strings.ReplaceAll(spec.objectType, "-", "_")+"_loaded", objects)
	}

	ids := spec.filter(entry, objects)
	slog.Info("cleanup stage scoped",
		"object_type", spec.objectType,
		"listed", len(objects),
		"deletable", len(ids))
	if len(ids) == 0 {
		p.Tracker.Report(100, "No "+spec.label+" to delete")
		return nil
	}

	result := p.Client.DeleteMany(ctx, spec.objectType, ids, func(done, total int) {
		p.Tracker.ReportItems(done, total, "Deleting %s (%d/%d)", spec.label, done, total)
	})
	entry.Deleted = result.Deleted
	entry.Failed = len(result.Failed)
	p.Metrics.RecordDeleted(spec.metric, result.Deleted)
	return ctx.Err()
}

// journalCleanupStatus persists the cumulative ledger. A run-level error
// lands as a top-level key beside the per-type entries.
func (p *Pipeline) journalCleanupStatus(status CleanupStatus, runErr error) {
	if runErr == nil {
		p.journal("cleanup_status_responses", status)
		return
	}
	augmented := make(map[string]interface{}, len(status)+1)
	for key, entry := range status {
		augmented[key] = entry
	}
	augmented["error"] = runErr.Error()
	p.journal("cleanup_status_responses", augmented)
}

// allIDs admits every listed object.
func allIDs(entry *CleanupEntry, objects []map[string]interface{}) []string {
	ids := idsOf(objects)
	entry.Total = len(ids)
	return ids
}

// deletableParts excludes product parts. The root product cannot be
// deleted and anchors the next provisioning run.
func deletableParts(entry *CleanupEntry, objects []map[string]interface{}) []string {
	ids := make([]string, 0, len(objects))
	for _, part := range objects {
		if partType, _ := part["type"].(string); partType == "product" {
			continue
		}
		if id, ok := part["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	entry.Total = len(ids)
	return ids
}

// deletableDevUsers excludes the bootstrap user. Total counts every
// listed user; Protected counts the excluded ones.
func deletableDevUsers(entry *CleanupEntry, objects []map[string]interface{}) []string {
	entry.Total = len(objects)
	protected := 0
	ids := make([]string, 0, len(objects))
	for _, user := range objects {
		id, _ := user["id"].(string)
		if strings.HasSuffix(id, protectedDevUserSuffix) {
			protected++
			continue
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	entry.Protected = intPtr(protected)
	return ids
}

func idsOf(objects []map[string]interface{}) []string {
	ids := make([]string, 0, len(objects))
	for _, object := range objects {
		if id, ok := object["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func intPtr(n int) *int { return &n }
