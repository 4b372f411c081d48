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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinterlante1206/DemoForge/services/provisioner/devrev"
)

// autoReplyAutomation names the stock automation that identifies the
// auto-reply snap-in in the snap-in listing.
const autoReplyAutomation = "auto_reply"

// Crawl depths: the marketing site is shallow, the support site carries
// the knowledge-base tree.
const (
	companyCrawlDepth = 2
	supportCrawlDepth = 4
)

// configureOrg applies org-level defaults ahead of content creation:
// silencing the auto-reply snap-in and installing the default support
// SLA. Both are gated by run settings and neither is load-bearing, so
// failures log warnings and the run continues.
func (p *Pipeline) configureOrg(ctx context.Context, orgID string) {
	settings := p.Params.Settings()

	if settings.DeactivateAutoReply {
		p.Tracker.Report(10, "Deactivating auto-reply snap-in...")
		if err := p.deactivateAutoReply(ctx); err != nil {
			slog.Warn("auto-reply deactivation failed", "error", err)
		}
	}
	p.Tracker.Report(50, "Applying SLA configuration...")

	if settings.SetSLA {
		if err := p.setDefaultSLA(ctx, orgID); err != nil {
			slog.Warn("SLA configuration failed", "error", err)
		}
	}
	p.Tracker.Report(100, "Org configuration complete")
}

// deactivateAutoReply finds the auto-reply snap-in and deactivates it.
// Idempotent: a snap-in that is already inactive, or a 400 reporting it
// cannot be deactivated from the inactive state, both count as success.
// A tenant without the snap-in installed has nothing to silence.
func (p *Pipeline) deactivateAutoReply(ctx context.Context) error {
	snapIns, err := p.Client.ListSnapIns(ctx)
	if err != nil {
		return err
	}

	var autoReply *devrev.SnapIn
	for i := range snapIns {
		if len(snapIns[i].Automations) > 0 && snapIns[i].Automations[0].Name == autoReplyAutomation {
			autoReply = &snapIns[i]
			break
		}
	}
	if autoReply == nil {
		slog.Info("auto-reply snap-in not installed")
		return nil
	}

	if !autoReply.IsActive || strings.EqualFold(autoReply.State, "disabled") {
		slog.Info("auto-reply snap-in already inactive", "state", autoReply.State)
		return nil
	}

	if err := p.Client.DeactivateSnapIn(ctx, autoReply.DisplayID); err != nil {
		if devrev.IsInactiveDeactivation(err) {
			slog.Info("auto-reply snap-in already inactive", "display_id", autoReply.DisplayID)
			return nil
		}
		return fmt.Errorf("failed to deactivate snap-in %s: %w", autoReply.DisplayID, err)
	}
	slog.Info("auto-reply snap-in deactivated", "display_id", autoReply.DisplayID)
	return nil
}

// setDefaultSLA creates the default support SLA as a draft and publishes
// it. The metric definition DONs embed the bare org id.
func (p *Pipeline) setDefaultSLA(ctx context.Context, orgID string) error {
	resp, err := p.Client.CreateSLA(ctx, slaBody(orgID))
	if err != nil {
		return fmt.Errorf("failed to create SLA: %w", err)
	}
	slaID := devrev.StringAt(resp, "sla", "id")
	if slaID == "" {
		return errors.New("SLA response carries no id")
	}
	if err := p.Client.TransitionSLA(ctx, slaID, "published"); err != nil {
		return fmt.Errorf("failed to publish SLA %s: %w", slaID, err)
	}
	slog.Info("default SLA published", "sla_id", slaID)
	return nil
}

// slaBody builds the default SLA create payload for an org.
//
// Four ticket policies scale response targets by severity against the
// first-response metric; one conversation policy carries both
// conversation metrics. Targets are minutes. The low-severity selector
// carries no tag_operation, matching the tenant's stock configuration.
func slaBody(orgID string) map[string]interface{} {
	metric := func(n int) string {
		return fmt.Sprintf("don:core:dvrv-us-1:devo/%s:metric_definition/%d", orgID, n)
	}
	ticketPolicy := func(severity string, target, warning int, tagOperation bool) map[string]interface{} {
		selector := map[string]interface{}{
			"applies_to":    "ticket",
			"custom_fields": map[string]interface{}{},
			"severity":      []string{severity},
		}
		if tagOperation {
			selector["tag_operation"] = "any"
		}
		return map[string]interface{}{
			"metrics": []map[string]interface{}{{
				"metric":         metric(3),
				"performance":    0,
				"target":         target,
				"warning_target": warning,
			}},
			"name":     "New ticket policy",
			"selector": selector,
		}
	}

	return map[string]interface{}{
		"applies_to": []string{"conversation", "ticket"},
		"name":       "Default",
		"sla_type":   "external",
		"policies": []map[string]interface{}{
			ticketPolicy("low", 25920, 12960, false),
			ticketPolicy("medium", 11880, 5940, true),
			ticketPolicy("high", 5400, 2700, true),
			ticketPolicy("blocker", 2700, 1380, true),
			{
				"metrics": []map[string]interface{}{
					{
						"metric":         metric(1),
						"performance":    0,
						"target":         30,
						"warning_target": 20,
					},
					{
						"metric":         metric(2),
						"performance":    0,
						"target":         10,
						"warning_target": 5,
					},
				},
				"name": "New conversation policy",
				"selector": map[string]interface{}{
					"applies_to":    "conversation",
					"custom_fields": map[string]interface{}{},
					"tag_operation": "any",
				},
			},
		},
	}
}

// crawlSite starts web crawl jobs against the company site and, when
// given, the support site. Jobs run remotely after the run finishes;
// a failed start is logged and provisioning continues.
func (p *Pipeline) crawlSite(ctx context.Context) {
	if !p.Params.Settings().CrawlSite {
		p.Tracker.Report(100, "Site crawling disabled")
		return
	}

	if job, err := p.Client.CreateWebCrawlJob(ctx, p.Params.CompanyURL(), companyCrawlDepth); err == nil && job != nil {
		slog.Info("company site crawl started", "job_id", job.ID, "state", job.State)
	}
	p.Tracker.Report(50, "Started company site crawl")

	if supportURL := p.Params.SupportURL(); supportURL != "" {
		if job, err := p.Client.CreateWebCrawlJob(ctx, supportURL, supportCrawlDepth); err == nil && job != nil {
			slog.Info("support site crawl started", "job_id", job.ID, "state", job.State)
		}
	}
	p.Tracker.Report(100, "Site crawls started")
}
