// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "time"

const (
	// CurrentConfigVersion stamps newly created config files.
	CurrentConfigVersion = "1.0.0"

	// DefaultServiceURL is where a locally run provisioner listens.
	DefaultServiceURL = "http://localhost:8090"

	// DefaultTenantBaseURL is the DevRev API root used when a run does not
	// name its own tenant endpoint.
	DefaultTenantBaseURL = "https://api.devrev.ai/internal/"

	DefaultAccounts       = 5
	DefaultTicketsPerPart = 5
	DefaultIssuesPerPart  = 5
)

// DemoForgeConfig is the on-disk CLI configuration. It carries endpoints
// and run defaults only; the tenant PAT is never written to disk.
type DemoForgeConfig struct {
	Meta ConfigMeta `yaml:"meta"`

	// Service: where the provisioner service listens
	Service ServiceConfig `yaml:"service"`

	// Tenant: the DevRev org the runs act on
	Tenant TenantConfig `yaml:"tenant"`

	// Runs: default sizing for provisioning runs
	Runs RunConfig `yaml:"runs"`
}

// ConfigMeta records provenance for the config file itself.
type ConfigMeta struct {
	Version    string `yaml:"version"`
	CreatedAt  int64  `yaml:"created_at"`
	ModifiedBy string `yaml:"modified_by"`
}

type ServiceConfig struct {
	URL string `yaml:"url"` // e.g. http://localhost:8090
}

type TenantConfig struct {
	BaseURL string `yaml:"base_url"` // e.g. https://api.devrev.ai/internal/
}

type RunConfig struct {
	Accounts       int `yaml:"accounts"`
	TicketsPerPart int `yaml:"tickets_per_part"`
	IssuesPerPart  int `yaml:"issues_per_part"`
}

// GetURL returns the configured service URL or the default.
func (s ServiceConfig) GetURL() string {
	if s.URL == "" {
		return DefaultServiceURL
	}
	return s.URL
}

// GetBaseURL returns the configured tenant base URL or the default.
func (t TenantConfig) GetBaseURL() string {
	if t.BaseURL == "" {
		return DefaultTenantBaseURL
	}
	return t.BaseURL
}

// GetAccounts returns the configured account count or the default.
func (r RunConfig) GetAccounts() int {
	if r.Accounts <= 0 {
		return DefaultAccounts
	}
	return r.Accounts
}

// GetTicketsPerPart returns the configured ticket ceiling or the default.
func (r RunConfig) GetTicketsPerPart() int {
	if r.TicketsPerPart <= 0 {
		return DefaultTicketsPerPart
	}
	return r.TicketsPerPart
}

// GetIssuesPerPart returns the configured issue ceiling or the default.
func (r RunConfig) GetIssuesPerPart() int {
	if r.IssuesPerPart <= 0 {
		return DefaultIssuesPerPart
	}
	return r.IssuesPerPart
}

func newConfigMeta() ConfigMeta {
	return ConfigMeta{
		Version:    CurrentConfigVersion,
		CreatedAt:  time.Now().UnixMilli(),
		ModifiedBy: "demoforge-cli",
	}
}

func DefaultConfig() DemoForgeConfig {
	return DemoForgeConfig{
		Meta:    newConfigMeta(),
		Service: ServiceConfig{URL: DefaultServiceURL},
		Tenant:  TenantConfig{BaseURL: DefaultTenantBaseURL},
		Runs: RunConfig{
			Accounts:       DefaultAccounts,
			TicketsPerPart: DefaultTicketsPerPart,
			IssuesPerPart:  DefaultIssuesPerPart,
		},
	}
}
