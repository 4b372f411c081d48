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
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/jinterlante1206/DemoForge/services/provisioner/content"
	"github.com/jinterlante1206/DemoForge/services/provisioner/devrev"
	"github.com/jinterlante1206/DemoForge/services/provisioner/observability"
	"github.com/jinterlante1206/DemoForge/services/provisioner/seeds"
	"github.com/jinterlante1206/DemoForge/services/provisioner/session"
)

// Provisioning stage indexes, in ProvisionStages order.
const (
	stageInit = iota
	stageConfigureOrg
	stageCrawlSite
	stageDevUsers
	stageAccounts
	stageRevUsers
	stageHierarchy
	stageVocabulary
	stageTickets
	stageIssues
	stageOpportunities
)

// RevOrgRef identifies the default workspace created alongside an account.
type RevOrgRef struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	DisplayID string `json:"display_id"`
}

// Account is one provisioned account paired with its default workspace.
// Customer users attach to the workspace; opportunities attach to the
// account itself.
type Account struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	DisplayID string    `json:"display_id"`
	RevOrg    RevOrgRef `json:"rev_org"`
}

// PartRecord is one created product part, keyed by name in the parts
// artifact. OwnedBy is the resolved owner id, not the request value.
type PartRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	OwnedBy string `json:"owned_by"`
}

// userFailure records one user that could not be created.
type userFailure struct {
	User   string `json:"user"`
	Reason string `json:"reason"`
}

// workFailure records one work item that could not be created, with the
// payload that was attempted so the run stays reproducible.
type workFailure struct {
	Title   string `json:"title"`
	Error   string `json:"error"`
	Payload any    `json:"payload"`
}

// Pipeline executes one provisioning run against one tenant.
//
// # Description
//
// A Pipeline is built per run by the HTTP front door and never reused.
// All remote I/O is sequential on the calling goroutine; cancellation
// arrives through ctx. Every random draw comes from Rand, so a seeded
// source makes a run reproducible end to end.
//
// # Thread Safety
//
// Not safe for concurrent use. One run owns one Pipeline.
type Pipeline struct {
	Client  *devrev.Client
	Gen     *content.Generator
	Store   *session.Store
	Tracker *Tracker
	Rand    *rand.Rand
	Seeds   seeds.Set
	Metrics *observability.Metrics
	Params  Params
}

// Run provisions the full demo content set.
//
// Stage-fatal errors abort the run: org resolution, zero dev users or
// accounts surviving their stage, hierarchy generation or part creation
// failures, and an unusable stage vocabulary. Work-item stages collect
// per-item failures into session artifacts and keep going.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	start := time.Now()
	p.Metrics.RunStarted(observability.KindGenerate)
	defer func() {
		p.Metrics.RunEnded(observability.KindGenerate, time.Since(start).Seconds(), err == nil)
	}()

	p.Tracker.Enter(stageInit, "Initializing...")
	orgID, err := p.Client.DevOrgID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve dev org: %w", err)
	}
	slog.Info("provisioning run started",
		"session_id", p.Params.SessionID(),
		"dev_org", orgID,
		"domain", p.Params.Domain())
	p.Tracker.Report(100, "Connected to dev org "+orgID)

	p.Tracker.Enter(stageConfigureOrg, "Configuring org defaults...")
	p.configureOrg(ctx, orgID)

	p.Tracker.Enter(stageCrawlSite, "Starting site crawls...")
	p.crawlSite(ctx)

	p.Tracker.Enter(stageDevUsers, "Creating dev users...")
	devUsers, err := p.createDevUsers(ctx)
	if err != nil {
		return err
	}

	p.Tracker.Enter(stageAccounts, "Creating accounts...")
	accounts, err := p.createAccounts(ctx, devUsers)
	if err != nil {
		return err
	}

	p.Tracker.Enter(stageRevUsers, "Creating customer users...")
	if _, err = p.createRevUsers(ctx, accounts); err != nil {
		return err
	}

	p.Tracker.Enter(stageHierarchy, "Generating product hierarchy...")
	hierarchy, parts, err := p.createHierarchy(ctx, devUsers)
	if err != nil {
		return err
	}

	p.Tracker.Enter(stageVocabulary, "Loading stage vocabulary...")
	vocab, err := p.loadStageVocabulary(ctx)
	if err != nil {
		return err
	}

	p.Tracker.Enter(stageTickets, "Creating tickets...")
	if err = p.createTickets(ctx, hierarchy, parts, accounts, vocab); err != nil {
		return err
	}

	p.Tracker.Enter(stageIssues, "Creating issues...")
	if err = p.createIssues(ctx, hierarchy, parts, devUsers, vocab); err != nil {
		return err
	}

	p.Tracker.Enter(stageOpportunities, "Creating opportunities...")
	if err = p.createOpportunities(ctx, accounts, devUsers, vocab); err != nil {
		return err
	}

	p.Tracker.Done("Demo content generated successfully")
	slog.Info("provisioning run finished",
		"session_id", p.Params.SessionID(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// journal persists one session artifact. Artifacts are evidential, so a
// failed write logs a warning and the run continues.
func (p *Pipeline) journal(name string, payload any) {
	if _, err := p.Store.SaveArtifact(p.Params.SessionID(), name, payload); err != nil {
		slog.Warn("artifact write failed",
			"session_id", p.Params.SessionID(),
			"artifact", name,
			"error", err)
	}
}

// emailFor derives a dev user email from a full name: lowercased, spaces
// folded to dots, on the example.co domain.
func emailFor(fullName string) string {
	local := strings.ReplaceAll(strings.ToLower(fullName), " ", ".")
	return local + "@example.co"
}

// ===== DEV USERS =====

// createDevUsers creates one shadow dev user per seed name and returns the
// created ids. Per-item failures collect into devusers_failed; a run with
// zero surviving dev users cannot own anything downstream and aborts.
func (p *Pipeline) createDevUsers(ctx context.Context) ([]string, error) {
	payloads := make([]map[string]interface{}, 0, len(p.Seeds.DevUsers))
	for _, name := range p.Seeds.DevUsers {
		payloads = append(payloads, map[string]interface{}{
			"email":     emailFor(name),
			"full_name": name,
			"state":     "shadow",
		})
	}
	p.journal("devusers", payloads)

	ids := make([]string, 0, len(payloads))
	responses := make([]map[string]interface{}, 0, len(payloads))
	var failed []userFailure
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, _ := payload["full_name"].(string)
		resp, err := p.Client.Create(ctx, "dev-users", payload)
		if err != nil {
			slog.Warn("dev user creation failed", "name", name, "error", err)
			failed = append(failed, userFailure{User: name, Reason: err.Error()})
			p.Metrics.RecordItemFailure("dev_user")
			continue
		}
		responses = append(responses, resp)
		if id := devrev.StringAt(resp, "dev_user", "id"); id != "" {
			ids = append(ids, id)
		}
		p.Metrics.RecordCreated("dev_user", 1)
		p.Tracker.ReportItems(i+1, len(payloads), "Creating dev users (%d/%d)", i+1, len(payloads))
	}

	if len(failed) > 0 {
		p.journal("devusers_failed", failed)
	}
	if len(responses) > 0 {
		p.journal("devusers_responses", responses)
	}
	if len(ids) == 0 {
		return nil, errors.New("no dev users created")
	}
	p.Tracker.Report(100, fmt.Sprintf("Created %d dev users", len(ids)))
	return ids, nil
}

// ===== ACCOUNTS =====

// createAccounts provisions the configured number of accounts from the
// seed pool and returns each with its default workspace.
//
// A 409 means the account already exists on the tenant; those names are
// recovered from the workspace listing after the loop. Any other create
// failure aborts the run.
func (p *Pipeline) createAccounts(ctx context.Context, devUsers []string) ([]Account, error) {
	names := append([]string(nil), p.Seeds.Accounts...)
	p.Rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	if len(names) > p.Params.Accounts() {
		names = names[:p.Params.Accounts()]
	}

	payloads := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		payloads = append(payloads, map[string]interface{}{
			"display_name":  name,
			"external_refs": []string{name},
			"owned_by":      []string{devUsers[p.Rand.Intn(len(devUsers))]},
		})
	}
	p.journal("accounts", payloads)

	responses := make([]map[string]interface{}, 0, len(payloads))
	var conflicted []string
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, _ := payload["display_name"].(string)
		resp, err := p.Client.Create(ctx, "accounts", payload)
		if err != nil {
			if devrev.IsConflict(err) {
				slog.Info("account already exists", "name", name)
				conflicted = append(conflicted, name)
				continue
			}
			return nil, fmt.Errorf("failed to create account %q: %w", name, err)
		}
		responses = append(responses, resp)
		p.Metrics.RecordCreated("account", 1)
		p.Tracker.ReportItems(i+1, len(payloads), "Creating account (%d/%d)", i+1, len(payloads))
	}
	if len(responses) > 0 {
		p.journal("accounts_responses", responses)
	}

	accounts := make([]Account, 0, len(payloads))
	for _, resp := range responses {
		accounts = append(accounts, Account{
			Name:      devrev.StringAt(resp, "account", "display_name"),
			ID:        devrev.StringAt(resp, "account", "id"),
			DisplayID: devrev.StringAt(resp, "account", "display_id"),
			RevOrg: RevOrgRef{
				Name:      devrev.StringAt(resp, "default_rev_org", "display_name"),
				ID:        devrev.StringAt(resp, "default_rev_org", "id"),
				DisplayID: devrev.StringAt(resp, "default_rev_org", "display_id"),
			},
		})
	}

	if len(conflicted) > 0 {
		recovered, err := p.recoverExistingAccounts(ctx, conflicted)
		if err != nil {
			slog.Warn("existing account recovery failed", "error", err)
		} else {
			accounts = append(accounts, recovered...)
		}
	}
	if len(accounts) == 0 {
		return nil, errors.New("no accounts available for provisioning")
	}

	p.journal("accounts_processed", accounts)
	p.Tracker.Report(100, fmt.Sprintf("Prepared %d accounts", len(accounts)))
	return accounts, nil
}

// recoverExistingAccounts resolves accounts the tenant already holds by
// walking the workspace listing. Each workspace embedding an account is
// paired with it; only the requested names are returned.
func (p *Pipeline) recoverExistingAccounts(ctx context.Context, names []string) ([]Account, error) {
	revOrgs, err := p.Client.ListAll(ctx, "rev-orgs")
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	var recovered []Account
	for _, org := range revOrgs {
		account := devrev.ObjectAt(org, "account")
		if account == nil {
			continue
		}
		name := devrev.StringAt(account, "display_name")
		if !wanted[name] {
			continue
		}
		recovered = append(recovered, Account{
			Name:      name,
			ID:        devrev.StringAt(account, "id"),
			DisplayID: devrev.StringAt(account, "display_id"),
			RevOrg: RevOrgRef{
				Name:      devrev.StringAt(org, "display_name"),
				ID:        devrev.StringAt(org, "id"),
				DisplayID: devrev.StringAt(org, "display_id"),
			},
		})
		delete(wanted, name)
	}
	if len(recovered) > 0 {
		p.journal("accounts_existing", recovered)
		slog.Info("recovered existing accounts", "count", len(recovered))
	}
	return recovered, nil
}

// ===== REV USERS =====

// createRevUsers creates one customer user per seed display name, placed
// in a random workspace, and returns the created ids. When every create
// fails the tenant already has its customer base, so the existing listing
// is used instead.
func (p *Pipeline) createRevUsers(ctx context.Context, accounts []Account) ([]string, error) {
	payloads := make([]map[string]interface{}, 0, len(p.Seeds.RevUsers))
	for _, name := range p.Seeds.RevUsers {
		payloads = append(payloads, map[string]interface{}{
			"display_name": name,
			"rev_org":      accounts[p.Rand.Intn(len(accounts))].RevOrg.ID,
		})
	}
	p.journal("revusers", payloads)

	responses := make([]map[string]interface{}, 0, len(payloads))
	var failed []userFailure
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, _ := payload["display_name"].(string)
		resp, err := p.Client.Create(ctx, "rev-users", payload)
		if err != nil {
			reason := err.Error()
			if devrev.IsConflict(err) {
				slog.Info("customer user already exists", "name", name)
				reason = "already exists"
			} else {
				slog.Warn("customer user creation failed", "name", name, "error", err)
			}
			failed = append(failed, userFailure{User: name, Reason: reason})
			p.Metrics.RecordItemFailure("rev_user")
			continue
		}
		responses = append(responses, resp)
		p.Metrics.RecordCreated("rev_user", 1)
		p.Tracker.ReportItems(i+1, len(payloads), "Creating customer user (%d/%d)", i+1, len(payloads))
	}

	if len(failed) > 0 {
		p.journal("revusers_failed", failed)
	}

	if len(responses) == 0 {
		existing, err := p.Client.ListAll(ctx, "rev-users")
		if err != nil {
			return nil, fmt.Errorf("failed to list existing customer users: %w", err)
		}
		p.journal("revusers_existing", existing)
		ids := make([]string, 0, len(existing))
		for _, user := range existing {
			if id, ok := user["id"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
		p.Tracker.Report(100, fmt.Sprintf("Using %d existing customer users", len(ids)))
		return ids, nil
	}

	p.journal("revusers_responses", responses)

	ids := make([]string, 0, len(responses))
	processed := make([]map[string]interface{}, 0, len(responses))
	for _, resp := range responses {
		revUser := devrev.ObjectAt(resp, "rev_user")
		if revUser == nil {
			continue
		}
		processed = append(processed, map[string]interface{}{
			"id":           revUser["id"],
			"display_name": revUser["display_name"],
			"rev_org":      revUser["rev_org"],
		})
		if id, ok := revUser["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	p.journal("revusers_processed", processed)
	p.Tracker.Report(100, fmt.Sprintf("Created %d customer users", len(ids)))
	return ids, nil
}

// ===== PRODUCT HIERARCHY =====

// createHierarchy generates the capability/feature/sub-feature tree and
// creates it depth first under the root product part. Any part creation
// failure aborts the run: later stages hang work items on these parts and
// a partial tree would corrupt them all.
func (p *Pipeline) createHierarchy(ctx context.Context, devUsers []string) (content.Hierarchy, map[string]PartRecord, error) {
	p.Tracker.Report(5, "Generating product structure...")
	hierarchy, err := p.Gen.ProductHierarchy(ctx, p.Params.Domain())
	p.Metrics.RecordLLMCall(p.Gen.HierarchyModel, err == nil)
	if err != nil {
		return nil, nil, fmt.Errorf("product hierarchy generation failed: %w", err)
	}
	p.journal("trails_gpt", hierarchy)

	total := 0
	for _, features := range hierarchy {
		total++
		total += len(features)
		for _, subs := range features {
			total += len(subs)
		}
	}
	p.Tracker.Report(10, fmt.Sprintf("Creating %d parts...", total))

	parts := make(map[string]PartRecord, total)
	created := map[string][]map[string]interface{}{
		"capabilities": {},
		"features":     {},
		"subfeatures":  {},
	}
	current := 0

	createPart := func(name, partType, parentID string) (map[string]interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := p.Client.Create(ctx, "parts", map[string]interface{}{
			"name":        name,
			"type":        partType,
			"owned_by":    []string{devUsers[p.Rand.Intn(len(devUsers))]},
			"parent_part": []string{parentID},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create part %q: %w", name, err)
		}
		part := devrev.ObjectAt(resp, "part")
		if part == nil {
			return nil, fmt.Errorf("part response for %q carries no part object", name)
		}
		record := PartRecord{
			ID:   devrev.StringAt(part, "id"),
			Type: devrev.StringAt(part, "type"),
		}
		if owners, ok := part["owned_by"].([]interface{}); ok && len(owners) > 0 {
			if owner, ok := owners[0].(map[string]interface{}); ok {
				record.OwnedBy, _ = owner["id"].(string)
			}
		}
		parts[devrev.StringAt(part, "name")] = record
		current++
		p.Tracker.Report(10+current*80/total, fmt.Sprintf("Creating part (%d/%d): %s", current, total, name))
		p.Metrics.RecordCreated("part", 1)
		return resp, nil
	}

	for _, capability := range sortedKeys(hierarchy) {
		capResp, err := createPart(capability, "capability", rootProductPart)
		if err != nil {
			return nil, nil, err
		}
		created["capabilities"] = append(created["capabilities"], capResp)
		capID := devrev.StringAt(capResp, "part", "id")

		features := hierarchy[capability]
		for _, feature := range sortedKeys(features) {
			featResp, err := createPart(feature, "feature", capID)
			if err != nil {
				return nil, nil, err
			}
			created["features"] = append(created["features"], featResp)
			featID := devrev.StringAt(featResp, "part", "id")

			for _, subFeature := range features[feature] {
				subResp, err := createPart(subFeature, "feature", featID)
				if err != nil {
					return nil, nil, err
				}
				created["subfeatures"] = append(created["subfeatures"], subResp)
			}
		}
	}

	p.journal("trails_responses", created)
	p.journal("parts", parts)
	p.Tracker.Report(100, fmt.Sprintf("Created %d parts", len(parts)))
	return hierarchy, parts, nil
}

// rootProductPart is the display id of the tenant's root product part.
// Every tenant bootstraps with it, so capabilities can parent to it by
// display id instead of a lookup.
const rootProductPart = "PROD-1"

// sortedKeys returns map keys in sorted order so part creation and random
// draws replay identically for a fixed seed.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ===== STAGE VOCABULARY =====

// loadStageVocabulary maps custom stage names to their tenant ids. Work
// payloads reference stages by id, so an empty vocabulary would fail every
// work item and aborts instead.
func (p *Pipeline) loadStageVocabulary(ctx context.Context) (map[string]string, error) {
	entries, err := p.Client.ListAll(ctx, "stages.custom")
	if err != nil {
		return nil, fmt.Errorf("failed to load stage vocabulary: %w", err)
	}
	p.journal("custom_stages_loaded", entries)

	vocab := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, _ := entry["name"].(string)
		id, _ := entry["id"].(string)
		if name != "" && id != "" {
			vocab[name] = id
		}
	}
	if len(vocab) == 0 {
		return nil, errors.New("tenant has no custom stages")
	}
	p.Tracker.Report(100, fmt.Sprintf("Loaded %d stages", len(vocab)))
	return vocab, nil
}

// ===== TICKETS =====

// capabilityNames returns the hierarchy's capability names in stable order.
func capabilityNames(h content.Hierarchy) []string {
	return sortedKeys(h)
}

// leafPartNames returns the parts with no children: every sub-feature plus
// any feature without sub-features. Tickets attach to leaves; issues
// attach to capabilities.
func leafPartNames(h content.Hierarchy) []string {
	var leaves []string
	for _, capability := range capabilityNames(h) {
		features := h[capability]
		for _, feature := range sortedKeys(features) {
			subs := features[feature]
			if len(subs) == 0 {
				leaves = append(leaves, feature)
				continue
			}
			leaves = append(leaves, subs...)
		}
	}
	return leaves
}

// createTickets generates and creates support tickets for every leaf part.
// Generation fills the first 40% of the stage slice, creation the rest.
// A part whose generated JSON does not parse is skipped; a seed stage name
// missing from the vocabulary fails that item only.
func (p *Pipeline) createTickets(ctx context.Context, hierarchy content.Hierarchy, parts map[string]PartRecord, accounts []Account, vocab map[string]string) error {
	leaves := leafPartNames(hierarchy)
	if len(leaves) == 0 {
		slog.Warn("no leaf parts eligible for tickets")
		p.Tracker.Report(100, "No parts eligible for tickets")
		return nil
	}

	var drafts []map[string]interface{}
	for i, partName := range leaves {
		if err := ctx.Err(); err != nil {
			return err
		}
		count := p.Params.TicketCount(p.Rand)
		ticketSeeds, err := p.Gen.Tickets(ctx, p.Params.Domain(), partName, count)
		p.Metrics.RecordLLMCall(p.Gen.WorkModel, err == nil)
		if err != nil {
			slog.Warn("ticket generation failed for part", "part", partName, "error", err)
			continue
		}
		for _, seed := range ticketSeeds {
			drafts = append(drafts, map[string]interface{}{
				"title":           seed.Title,
				"body":            seed.Body,
				"severity":        seed.Severity,
				"stage":           seed.Stage,
				"applies_to_part": partName,
				"type":            "ticket",
			})
		}
		p.Tracker.Report((i+1)*40/len(leaves),
			fmt.Sprintf("Generating ticket content (%d/%d): %s", i+1, len(leaves), partName))
	}
	p.journal("tickets_gpt", drafts)

	var failed []workFailure
	payloads := make([]map[string]interface{}, 0, len(drafts))
	for _, draft := range drafts {
		title, _ := draft["title"].(string)
		partName, _ := draft["applies_to_part"].(string)
		stageName, _ := draft["stage"].(string)

		part, ok := parts[partName]
		if !ok {
			failed = append(failed, workFailure{Title: title, Error: fmt.Sprintf("unknown part %q", partName), Payload: draft})
			p.Metrics.RecordItemFailure("ticket")
			continue
		}
		stageID, ok := vocab[stageName]
		if !ok {
			failed = append(failed, workFailure{Title: title, Error: fmt.Sprintf("unknown stage %q", stageName), Payload: draft})
			p.Metrics.RecordItemFailure("ticket")
			continue
		}
		payloads = append(payloads, map[string]interface{}{
			"title":           draft["title"],
			"body":            draft["body"],
			"severity":        draft["severity"],
			"type":            "ticket",
			"applies_to_part": part.ID,
			"owned_by":        []string{part.OwnedBy},
			"rev_org":         accounts[p.Rand.Intn(len(accounts))].RevOrg.ID,
			"stage":           map[string]interface{}{"id": stageID},
		})
	}
	p.journal("tickets", payloads)

	responses := make([]map[string]interface{}, 0, len(payloads))
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		title, _ := payload["title"].(string)
		resp, err := p.Client.Create(ctx, "works", payload)
		if err != nil {
			slog.Warn("ticket creation failed", "title", title, "error", err)
			failed = append(failed, workFailure{Title: title, Error: err.Error(), Payload: payload})
			p.Metrics.RecordItemFailure("ticket")
			continue
		}
		responses = append(responses, resp)
		p.Metrics.RecordCreated("ticket", 1)
		p.Tracker.Report(40+(i+1)*60/len(payloads),
			fmt.Sprintf("Creating ticket (%d/%d)", i+1, len(payloads)))
	}

	if len(failed) > 0 {
		p.journal("tickets_failed", failed)
	}
	if len(responses) > 0 {
		p.journal("tickets_responses", responses)
	}

	details := make([]map[string]interface{}, 0, len(responses))
	for _, resp := range responses {
		details = append(details, map[string]interface{}{
			"id":              devrev.StringAt(resp, "work", "id"),
			"title":           devrev.StringAt(resp, "work", "title"),
			"body":            devrev.StringAt(resp, "work", "body"),
			"stage":           devrev.StringAt(resp, "work", "stage", "name"),
			"severity":        devrev.StringAt(resp, "work", "severity"),
			"applies_to_part": devrev.StringAt(resp, "work", "applies_to_part", "id"),
		})
	}
	p.journal("tickets_processed", details)
	p.Tracker.Report(100, fmt.Sprintf("Created %d tickets", len(details)))
	return nil
}

// ===== ISSUES =====

// createIssues generates and creates engineering issues for every
// capability part. Issues are owned by random dev users rather than the
// part owner, and default to priority p2 when the model omits one.
func (p *Pipeline) createIssues(ctx context.Context, hierarchy content.Hierarchy, parts map[string]PartRecord, devUsers []string, vocab map[string]string) error {
	capabilities := capabilityNames(hierarchy)
	if len(capabilities) == 0 {
		slog.Warn("no capability parts eligible for issues")
		p.Tracker.Report(100, "No parts eligible for issues")
		return nil
	}

	var drafts []map[string]interface{}
	for i, partName := range capabilities {
		if err := ctx.Err(); err != nil {
			return err
		}
		count := p.Params.IssueCount(p.Rand)
		issueSeeds, err := p.Gen.Issues(ctx, p.Params.Domain(), partName, count)
		p.Metrics.RecordLLMCall(p.Gen.WorkModel, err == nil)
		if err != nil {
			slog.Warn("issue generation failed for part", "part", partName, "error", err)
			continue
		}
		for _, seed := range issueSeeds {
			priority := seed.Priority
			if priority == "" {
				priority = "p2"
			}
			drafts = append(drafts, map[string]interface{}{
				"title":           seed.Title,
				"body":            seed.Body,
				"priority":        priority,
				"stage":           seed.Stage,
				"applies_to_part": partName,
				"type":            "issue",
			})
		}
		p.Tracker.Report((i+1)*40/len(capabilities),
			fmt.Sprintf("Generating issue content (%d/%d): %s", i+1, len(capabilities), partName))
	}
	p.journal("issues_gpt", drafts)

	var failed []workFailure
	payloads := make([]map[string]interface{}, 0, len(drafts))
	for _, draft := range drafts {
		title, _ := draft["title"].(string)
		partName, _ := draft["applies_to_part"].(string)
		stageName, _ := draft["stage"].(string)

		part, ok := parts[partName]
		if !ok {
			failed = append(failed, workFailure{Title: title, Error: fmt.Sprintf("unknown part %q", partName), Payload: draft})
			p.Metrics.RecordItemFailure("issue")
			continue
		}
		stageID, ok := vocab[stageName]
		if !ok {
			failed = append(failed, workFailure{Title: title, Error: fmt.Sprintf("unknown stage %q", stageName), Payload: draft})
			p.Metrics.RecordItemFailure("issue")
			continue
		}
		payloads = append(payloads, map[string]interface{}{
			"title":           draft["title"],
			"body":            draft["body"],
			"priority":        draft["priority"],
			"type":            "issue",
			"applies_to_part": part.ID,
			"owned_by":        []string{devUsers[p.Rand.Intn(len(devUsers))]},
			"stage":           map[string]interface{}{"id": stageID},
		})
	}
	p.journal("issues", payloads)

	responses := make([]map[string]interface{}, 0, len(payloads))
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		title, _ := payload["title"].(string)
		resp, err := p.Client.Create(ctx, "works", payload)
		if err != nil {
			slog.Warn("issue creation failed", "title", title, "error", err)
			failed = append(failed, workFailure{Title: title, Error: err.Error(), Payload: payload})
			p.Metrics.RecordItemFailure("issue")
			continue
		}
		responses = append(responses, resp)
		p.Metrics.RecordCreated("issue", 1)
		p.Tracker.Report(40+(i+1)*60/len(payloads),
			fmt.Sprintf("Creating issue (%d/%d)", i+1, len(payloads)))
	}

	if len(failed) > 0 {
		p.journal("issues_failed", failed)
	}
	if len(responses) > 0 {
		p.journal("issues_responses", responses)
	}
	p.Tracker.Report(100, fmt.Sprintf("Created %d issues", len(responses)))
	return nil
}

// ===== OPPORTUNITIES =====

// opportunityStages lists the sales stages an opportunity can land in.
var opportunityStages = []string{
	"qualification",
	"stalled",
	"validation",
	"negotiation",
	"contract",
	"closed_won",
	"closed_lost",
}

// forecastByStage maps a sales stage to its forecast category. closed_lost
// carries the platform's literal "omitted" enum value.
var forecastByStage = map[string]string{
	"qualification": "pipeline",
	"stalled":       "pipeline",
	"validation":    "upside",
	"negotiation":   "strong_upside",
	"contract":      "commit",
	"closed_won":    "won",
	"closed_lost":   "omitted",
}

// drawOpportunityStage draws a stage by sampling three candidates and
// choosing one; the result is uniform over the stage list.
func (p *Pipeline) drawOpportunityStage() string {
	picks := p.Rand.Perm(len(opportunityStages))[:3]
	return opportunityStages[picks[p.Rand.Intn(3)]]
}

// createOpportunities creates one sales opportunity per account plus an
// upsell opportunity for every closed_won deal. Annual recurring revenue
// draws 10000..100000 and the amount spreads it over 12..36 months.
func (p *Pipeline) createOpportunities(ctx context.Context, accounts []Account, devUsers []string, vocab map[string]string) error {
	p.Tracker.Report(0, "Preparing opportunity data...")

	type draftOpp struct {
		payload map[string]interface{}
		stage   string
	}

	var failed []workFailure
	assemble := func(title, accountID, stage string, arr int, ownedBy []string) *draftOpp {
		stageID, ok := vocab[stage]
		if !ok {
			failed = append(failed, workFailure{
				Title:   title,
				Error:   fmt.Sprintf("unknown stage %q", stage),
				Payload: map[string]interface{}{"account": accountID, "stage": stage},
			})
			p.Metrics.RecordItemFailure("opportunity")
			return nil
		}
		months := 12 + p.Rand.Intn(25)
		return &draftOpp{
			stage: stage,
			payload: map[string]interface{}{
				"type":                     "opportunity",
				"title":                    title,
				"annual_recurring_revenue": arr,
				"amount":                   roundCents(float64(arr) * float64(months) / 12),
				"forecast_category":        forecastByStage[stage],
				"owned_by":                 ownedBy,
				"account":                  accountID,
				"stage":                    map[string]interface{}{"id": stageID},
			},
		}
	}

	base := make([]*draftOpp, 0, len(accounts))
	for _, account := range accounts {
		stage := p.drawOpportunityStage()
		arr := 10000 + p.Rand.Intn(90001)
		owner := []string{devUsers[p.Rand.Intn(len(devUsers))]}
		if draft := assemble(account.Name, account.ID, stage, arr, owner); draft != nil {
			base = append(base, draft)
		}
	}

	drafts := append([]*draftOpp(nil), base...)
	for _, draft := range base {
		if draft.stage != "closed_won" {
			continue
		}
		arr := 10000 + p.Rand.Intn(40001)
		stage := []string{"negotiation", "contract"}[p.Rand.Intn(2)]
		title, _ := draft.payload["title"].(string)
		ownedBy, _ := draft.payload["owned_by"].([]string)
		accountID, _ := draft.payload["account"].(string)
		if upsell := assemble(title+" - Upsell", accountID, stage, arr, ownedBy); upsell != nil {
			drafts = append(drafts, upsell)
		}
	}

	payloads := make([]map[string]interface{}, 0, len(drafts))
	for _, draft := range drafts {
		payloads = append(payloads, draft.payload)
	}
	p.journal("opportunities", payloads)
	p.Tracker.Report(30, fmt.Sprintf("Prepared %d base and %d upsell opportunities",
		len(base), len(drafts)-len(base)))

	responses := make([]map[string]interface{}, 0, len(payloads))
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		title, _ := payload["title"].(string)
		resp, err := p.Client.Create(ctx, "works", payload)
		if err != nil {
			slog.Warn("opportunity creation failed", "title", title, "error", err)
			failed = append(failed, workFailure{Title: title, Error: err.Error(), Payload: payload})
			p.Metrics.RecordItemFailure("opportunity")
			continue
		}
		responses = append(responses, resp)
		p.Metrics.RecordCreated("opportunity", 1)
		p.Tracker.Report(30+(i+1)*70/len(payloads),
			fmt.Sprintf("Creating opportunity (%d/%d)", i+1, len(payloads)))
	}

	if len(failed) > 0 {
		p.journal("opportunities_failed", failed)
	}
	if len(responses) > 0 {
		p.journal("opportunities_responses", responses)
	}
	p.Tracker.Report(100, fmt.Sprintf("Created %d opportunities", len(responses)))
	return nil
}

// roundCents rounds to two decimal places.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
