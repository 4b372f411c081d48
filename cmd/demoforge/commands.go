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
	"log"

	"github.com/spf13/cobra"

	"github.com/jinterlante1206/DemoForge/cmd/demoforge/config"
	"github.com/jinterlante1206/DemoForge/pkg/ux"
)

// --- Global Command Variables ---
var (
	serviceURL       string
	tenantBaseURL    string
	tenantPAT        string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	provisionDomain   string
	provisionAccounts int
	ticketsPerPart    int
	issuesPerPart     int
	companyURL        string
	supportURL        string
	skipAutoReply     bool
	skipSLA           bool
	skipCrawl         bool

	cleanupForce bool

	statusWatch bool

	downloadOutput string

	rootCmd = &cobra.Command{
		Use:   "demoforge",
		Short: "A cli to drive the DemoForge demo tenant provisioner",
		Long: `DemoForge fills a fresh DevRev tenant with believable demo data
				and tears it back down when the demo is over. This cli talks to a
				running provisioner service.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
			if err := config.Load(); err != nil {
				log.Fatalf("Error loading the demoforge config: %v", err)
			}
		},
	}

	// --- Runs ---
	provisionCmd = &cobra.Command{
		Use:   "provision",
		Short: "Provision a DevRev tenant with generated demo content",
		Run:   runProvisionCommand, // Defined in cmd_provision.go
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "DANGER: Deletes the demo content from a DevRev tenant",
		Run:   runCleanupCommand, // Defined in cmd_provision.go
	}

	// --- Sessions ---
	statusCmd = &cobra.Command{
		Use:   "status [session_id]",
		Short: "Show the progress of a provisioning or cleanup run",
		Args:  cobra.ExactArgs(1),
		Run:   runStatusCommand, // Defined in cmd_session.go
	}

	downloadCmd = &cobra.Command{
		Use:   "download [session_id]",
		Short: "Download the journal bundle of a finished run",
		Args:  cobra.ExactArgs(1),
		Run:   runDownloadCommand, // Defined in cmd_session.go
	}

	// --- Service ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check that the provisioner service is reachable",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service-url", "",
		"Provisioner service URL (default from ~/.demoforge/demoforge.yaml)")

	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().StringVar(&tenantBaseURL, "base-url", "",
		"DevRev API base URL (default from config)")
	provisionCmd.Flags().StringVar(&tenantPAT, "pat", "",
		"DevRev personal access token (falls back to DEVREV_PAT)")
	provisionCmd.Flags().StringVar(&provisionDomain, "domain", "",
		"Business domain the generated content should describe, e.g. 'fleet telematics'")
	provisionCmd.Flags().IntVar(&provisionAccounts, "accounts", 0,
		"Number of customer accounts to create (default from config)")
	provisionCmd.Flags().IntVar(&ticketsPerPart, "tickets-per-part", 0,
		"Upper bound on tickets per product part (default from config)")
	provisionCmd.Flags().IntVar(&issuesPerPart, "issues-per-part", 0,
		"Upper bound on issues per product part (default from config)")
	provisionCmd.Flags().StringVar(&companyURL, "company-url", "",
		"Company site to crawl into the tenant's knowledge base")
	provisionCmd.Flags().StringVar(&supportURL, "support-url", "",
		"Support/docs site to crawl into the tenant's knowledge base")
	provisionCmd.Flags().BoolVar(&skipAutoReply, "skip-auto-reply", false,
		"Leave the tenant's auto-reply snap-in active")
	provisionCmd.Flags().BoolVar(&skipSLA, "skip-sla", false,
		"Do not install the default SLA policy")
	provisionCmd.Flags().BoolVar(&skipCrawl, "skip-crawl", false,
		"Do not start web crawl jobs")
	if err := provisionCmd.MarkFlagRequired("domain"); err != nil {
		log.Fatalf("Error marking the domain flag required: %v", err)
	}

	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVar(&tenantBaseURL, "base-url", "",
		"DevRev API base URL (default from config)")
	cleanupCmd.Flags().StringVar(&tenantPAT, "pat", "",
		"DevRev personal access token (falls back to DEVREV_PAT)")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false,
		"Required to confirm the deletion when not running interactively")

	// session commands
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false,
		"Keep polling until the run finishes")

	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "",
		"Output file (default session_<id>.zip)")

	rootCmd.AddCommand(healthCmd)
}
