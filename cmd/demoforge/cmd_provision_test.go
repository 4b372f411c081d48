// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/jinterlante1206/DemoForge/cmd/demoforge/config"
)

// resetFlags restores the package flag state after a test mutates it.
func resetFlags(t *testing.T) {
	t.Helper()
	origService := serviceURL
	origBase := tenantBaseURL
	origPAT := tenantPAT
	origDomain := provisionDomain
	origAccounts := provisionAccounts
	origTickets := ticketsPerPart
	origIssues := issuesPerPart
	origCompany := companyURL
	origSupport := supportURL
	origSkipAuto := skipAutoReply
	origSkipSLA := skipSLA
	origSkipCrawl := skipCrawl
	origConfig := config.Global
	t.Cleanup(func() {
		serviceURL = origService
		tenantBaseURL = origBase
		tenantPAT = origPAT
		provisionDomain = origDomain
		provisionAccounts = origAccounts
		ticketsPerPart = origTickets
		issuesPerPart = origIssues
		companyURL = origCompany
		supportURL = origSupport
		skipAutoReply = origSkipAuto
		skipSLA = origSkipSLA
		skipCrawl = origSkipCrawl
		config.Global = origConfig
	})
}

// =============================================================================
// FLAG RESOLUTION TESTS
// =============================================================================

func TestResolveServiceURL(t *testing.T) {
	resetFlags(t)

	config.Global = config.DemoForgeConfig{
		Service: config.ServiceConfig{URL: "http://demoforge.internal:9000"},
	}

	serviceURL = ""
	if got := resolveServiceURL(); got != "http://demoforge.internal:9000" {
		t.Errorf("resolveServiceURL() = %q, want the config value", got)
	}

	serviceURL = "http://localhost:7777"
	if got := resolveServiceURL(); got != "http://localhost:7777" {
		t.Errorf("resolveServiceURL() = %q, want the flag value", got)
	}
}

func TestResolveServiceURL_EmptyConfigFallsBackToDefault(t *testing.T) {
	resetFlags(t)

	config.Global = config.DemoForgeConfig{}
	serviceURL = ""

	if got := resolveServiceURL(); got != config.DefaultServiceURL {
		t.Errorf("resolveServiceURL() = %q, want %q", got, config.DefaultServiceURL)
	}
}

func TestResolveTenantBaseURL(t *testing.T) {
	resetFlags(t)

	config.Global = config.DemoForgeConfig{
		Tenant: config.TenantConfig{BaseURL: "https://api.devrev.ai/internal/"},
	}

	tenantBaseURL = ""
	if got := resolveTenantBaseURL(); got != "https://api.devrev.ai/internal/" {
		t.Errorf("resolveTenantBaseURL() = %q, want the config value", got)
	}

	tenantBaseURL = "https://api.dev.devrev-eng.ai/internal/"
	if got := resolveTenantBaseURL(); got != "https://api.dev.devrev-eng.ai/internal/" {
		t.Errorf("resolveTenantBaseURL() = %q, want the flag value", got)
	}
}

func TestResolvePAT(t *testing.T) {
	resetFlags(t)

	tenantPAT = "ey.flag.token"
	got, err := resolvePAT()
	if err != nil {
		t.Fatalf("resolvePAT() failed: %v", err)
	}
	if got != "ey.flag.token" {
		t.Errorf("resolvePAT() = %q, want the flag value", got)
	}

	tenantPAT = ""
	t.Setenv("DEVREV_PAT", "ey.env.token")
	got, err = resolvePAT()
	if err != nil {
		t.Fatalf("resolvePAT() failed: %v", err)
	}
	if got != "ey.env.token" {
		t.Errorf("resolvePAT() = %q, want the env value", got)
	}

	t.Setenv("DEVREV_PAT", "")
	if _, err := resolvePAT(); err == nil {
		t.Error("resolvePAT() should fail with no flag and no env")
	}
}

// =============================================================================
// REQUEST BUILDING TESTS
// =============================================================================

func TestBuildGenerateRequest_ConfigDefaults(t *testing.T) {
	resetFlags(t)

	config.Global = config.DemoForgeConfig{
		Tenant: config.TenantConfig{BaseURL: "https://api.devrev.ai/internal/"},
		Runs:   config.RunConfig{Accounts: 7, TicketsPerPart: 4, IssuesPerPart: 3},
	}
	provisionDomain = "fleet telematics"
	provisionAccounts = 0
	ticketsPerPart = 0
	issuesPerPart = 0
	companyURL = ""
	supportURL = ""
	skipAutoReply = false
	skipSLA = false
	skipCrawl = false

	req := buildGenerateRequest("ey.test.token")

	if req["base_url"] != "https://api.devrev.ai/internal/" {
		t.Errorf("base_url = %v", req["base_url"])
	}
	if req["pat"] != "ey.test.token" {
		t.Errorf("pat = %v", req["pat"])
	}
	if req["domain"] != "fleet telematics" {
		t.Errorf("domain = %v", req["domain"])
	}
	if req["accounts"] != 7 {
		t.Errorf("accounts = %v, want the config value 7", req["accounts"])
	}
	if req["tickets_per_part"] != 4 {
		t.Errorf("tickets_per_part = %v, want 4", req["tickets_per_part"])
	}
	if req["issues_per_part"] != 3 {
		t.Errorf("issues_per_part = %v, want 3", req["issues_per_part"])
	}

	if _, present := req["company_url"]; present {
		t.Error("company_url should be absent when the flag is empty")
	}
	if _, present := req["settings"]; present {
		t.Error("settings should be absent when no skip flags are set")
	}
}

func TestBuildGenerateRequest_FlagsOverrideConfig(t *testing.T) {
	resetFlags(t)

	config.Global = config.DemoForgeConfig{
		Runs: config.RunConfig{Accounts: 7, TicketsPerPart: 4, IssuesPerPart: 3},
	}
	provisionDomain = "cold chain logistics"
	provisionAccounts = 12
	ticketsPerPart = 6
	issuesPerPart = 2
	companyURL = "https://acme.example"
	supportURL = "https://support.acme.example"

	req := buildGenerateRequest("ey.test.token")

	if req["accounts"] != 12 {
		t.Errorf("accounts = %v, want the flag value 12", req["accounts"])
	}
	if req["tickets_per_part"] != 6 {
		t.Errorf("tickets_per_part = %v, want 6", req["tickets_per_part"])
	}
	if req["issues_per_part"] != 2 {
		t.Errorf("issues_per_part = %v, want 2", req["issues_per_part"])
	}
	if req["company_url"] != "https://acme.example" {
		t.Errorf("company_url = %v", req["company_url"])
	}
	if req["support_url"] != "https://support.acme.example" {
		t.Errorf("support_url = %v", req["support_url"])
	}
}

func TestBuildGenerateRequest_SkipFlagsBecomeSettings(t *testing.T) {
	resetFlags(t)

	config.Global = config.DemoForgeConfig{}
	provisionDomain = "telematics"
	skipAutoReply = true
	skipSLA = false
	skipCrawl = true

	req := buildGenerateRequest("ey.test.token")

	settings, ok := req["settings"].(map[string]bool)
	if !ok {
		t.Fatalf("settings missing or mistyped: %v", req["settings"])
	}
	if settings["deactivate_auto_reply"] {
		t.Error("deactivate_auto_reply should be false when --skip-auto-reply is set")
	}
	if !settings["set_SLA"] {
		t.Error("set_SLA should stay true when --skip-sla is not set")
	}
	if settings["crawl_site"] {
		t.Error("crawl_site should be false when --skip-crawl is set")
	}
}
