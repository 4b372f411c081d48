// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jinterlante1206/DemoForge/cmd/demoforge/config"
	"github.com/jinterlante1206/DemoForge/pkg/ux"
)

// =============================================================================
// FLAG RESOLUTION
// =============================================================================

// resolveServiceURL prefers the --service-url flag over the config file.
func resolveServiceURL() string {
	if serviceURL != "" {
		return serviceURL
	}
	return config.Global.Service.GetURL()
}

// resolveTenantBaseURL prefers the --base-url flag over the config file.
func resolveTenantBaseURL() string {
	if tenantBaseURL != "" {
		return tenantBaseURL
	}
	return config.Global.Tenant.GetBaseURL()
}

// resolvePAT reads the tenant PAT from the --pat flag or the DEVREV_PAT
// environment variable. The PAT never touches the config file.
func resolvePAT() (string, error) {
	if tenantPAT != "" {
		return tenantPAT, nil
	}
	if env := os.Getenv("DEVREV_PAT"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no PAT given: pass --pat or set DEVREV_PAT")
}

// buildGenerateRequest assembles the /v1/generate body from flags and
// config defaults. Optional fields stay absent rather than zero so the
// service applies its own defaults.
func buildGenerateRequest(pat string) map[string]interface{} {
	req := map[string]interface{}{
		"base_url": resolveTenantBaseURL(),
		"pat":      pat,
		"domain":   provisionDomain,
	}

	accounts := provisionAccounts
	if accounts <= 0 {
		accounts = config.Global.Runs.GetAccounts()
	}
	req["accounts"] = accounts

	tickets := ticketsPerPart
	if tickets <= 0 {
		tickets = config.Global.Runs.GetTicketsPerPart()
	}
	req["tickets_per_part"] = tickets

	issues := issuesPerPart
	if issues <= 0 {
		issues = config.Global.Runs.GetIssuesPerPart()
	}
	req["issues_per_part"] = issues

	if companyURL != "" {
		req["company_url"] = companyURL
	}
	if supportURL != "" {
		req["support_url"] = supportURL
	}

	if skipAutoReply || skipSLA || skipCrawl {
		req["settings"] = map[string]bool{
			"deactivate_auto_reply": !skipAutoReply,
			"set_SLA":               !skipSLA,
			"crawl_site":            !skipCrawl,
		}
	}
	return req
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runProvisionCommand starts a provisioning run and follows it to the end.
func runProvisionCommand(cmd *cobra.Command, args []string) {
	pat, err := resolvePAT()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	client := newServiceClient(resolveServiceURL())
	req := buildGenerateRequest(pat)

	ux.Title("DemoForge provisioning")
	ux.Info(fmt.Sprintf("Tenant:  %s", req["base_url"]))
	ux.Info(fmt.Sprintf("Domain:  %s", provisionDomain))
	ux.Info(fmt.Sprintf("Sizing:  %v accounts, up to %v tickets and %v issues per part",
		req["accounts"], req["tickets_per_part"], req["issues_per_part"]))

	sessionID, err := client.startRun("/v1/generate", req)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Info(fmt.Sprintf("Session: %s", sessionID))

	finishRun(client, sessionID)
	ux.Muted(fmt.Sprintf("Journal bundle: demoforge download %s", sessionID))
}

// runCleanupCommand starts a tenant decommission run and follows it.
func runCleanupCommand(cmd *cobra.Command, args []string) {
	if !cleanupForce {
		fmt.Println("Error: the --force flag is required to proceed with this destructive operation.")
		fmt.Println("Example: demoforge cleanup --force")
		os.Exit(1)
	}

	pat, err := resolvePAT()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	baseURL := resolveTenantBaseURL()
	if ux.IsInteractive() {
		fmt.Printf("DANGER: This will permanently delete the demo content from %s.\n", baseURL)
		fmt.Print("Are you sure you want to continue? (yes/no): ")
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(input) != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	client := newServiceClient(resolveServiceURL())

	ux.Title("DemoForge cleanup")
	ux.Info(fmt.Sprintf("Tenant:  %s", baseURL))

	sessionID, err := client.startRun("/v1/cleanup", map[string]interface{}{
		"base_url": baseURL,
		"pat":      pat,
	})
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Info(fmt.Sprintf("Session: %s", sessionID))

	finishRun(client, sessionID)
	ux.Muted(fmt.Sprintf("Deletion report: demoforge download %s", sessionID))
}

// finishRun follows a run to its terminal state and exits non-zero when
// the run failed or the service became unreachable.
func finishRun(client *serviceClient, sessionID string) {
	doc, err := client.followRun(sessionID)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	if doc.Error != "" {
		ux.Error(doc.Error)
		os.Exit(1)
	}
	ux.Success(doc.Status)
}
