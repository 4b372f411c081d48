// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the provisioning and decommission flows against
// a demo tenant.
//
// A provisioning run walks eleven ordered stages from org configuration
// through opportunity creation; decommission walks five deletion stages.
// Each stage owns a fixed slice of the 0-100 progress bar and journals
// every payload and response through the session store, so a run is
// auditable and a crash leaves a usable ledger.
package pipeline

import "fmt"

// Progress receives run progress reports. The registry adapts itself to
// this interface; the pipeline never sees the registry directly.
type Progress interface {
	Set(percent int, detail string)
}

// StageSpec names one stage and the share of the bar it owns.
type StageSpec struct {
	Name   string
	Weight int
}

// ProvisionStages returns the provisioning stage table. Eleven stages
// at nine points each; Done pins the bar to 100.
func ProvisionStages() []StageSpec {
	return []StageSpec{
		{Name: "init", Weight: 9},
		{Name: "configure_org", Weight: 9},
		{Name: "crawl_site", Weight: 9},
		{Name: "create_dev_users", Weight: 9},
		{Name: "create_accounts", Weight: 9},
		{Name: "create_rev_users", Weight: 9},
		{Name: "create_product_hierarchy", Weight: 9},
		{Name: "load_stage_vocabulary", Weight: 9},
		{Name: "create_tickets", Weight: 9},
		{Name: "create_issues", Weight: 9},
		{Name: "create_opportunities", Weight: 9},
	}
}

// CleanupStages returns the decommission stage table, five stages at
// twenty points each.
func CleanupStages() []StageSpec {
	return []StageSpec{
		{Name: "delete_parts", Weight: 20},
		{Name: "delete_works", Weight: 20},
		{Name: "delete_rev_users", Weight: 20},
		{Name: "delete_accounts", Weight: 20},
		{Name: "delete_dev_users", Weight: 20},
	}
}

// Tracker maps stage-local progress onto the global 0-100 scale.
//
// # Description
//
// Each stage reports its own 0-100 sub-progress; the tracker scales it
// into the stage's slice of the bar. A stage can never push the bar
// past its own slice, and the registry clamps regressions, so the
// global value is monotonic even when a stage re-reports.
type Tracker struct {
	sink   Progress
	stages []StageSpec
	bases  []int
	index  int
}

// NewTracker builds a tracker over the given stage table.
func NewTracker(sink Progress, stages []StageSpec) *Tracker {
	bases := make([]int, len(stages)+1)
	for i, s := range stages {
		bases[i+1] = bases[i] + s.Weight
	}
	return &Tracker{sink: sink, stages: stages, bases: bases}
}

// Enter moves to the given stage and reports its baseline.
func (t *Tracker) Enter(stage int, detail string) {
	if stage < 0 {
		stage = 0
	}
	if stage >= len(t.stages) {
		stage = len(t.stages) - 1
	}
	t.index = stage
	t.sink.Set(t.bases[stage], detail)
}

// Report maps a stage-local percentage into the current stage's slice.
// Out-of-range values clamp to the slice bounds.
func (t *Tracker) Report(pct int, detail string) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	value := t.bases[t.index] + pct*t.stages[t.index].Weight/100
	t.sink.Set(value, detail)
}

// ReportItems reports done-of-total within the current stage.
func (t *Tracker) ReportItems(done, total int, format string, args ...any) {
	pct := 100
	if total > 0 {
		pct = done * 100 / total
	}
	t.Report(pct, fmt.Sprintf(format, args...))
}

// StageName returns the current stage's name, for logging.
func (t *Tracker) StageName() string {
	return t.stages[t.index].Name
}

// Done pins the bar at 100.
func (t *Tracker) Done(detail string) {
	t.sink.Set(100, detail)
}
