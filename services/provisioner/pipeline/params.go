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

import "math/rand"

const (
	// minPerPart is the floor for per-part ticket and issue counts.
	minPerPart = 2

	defaultAccounts   = 5
	defaultMaxTickets = 5
	defaultMaxIssues  = 5
)

// Settings toggles the optional org-configuration steps. All default on.
type Settings struct {
	DeactivateAutoReply bool `json:"deactivate_auto_reply"`
	SetSLA              bool `json:"set_SLA"`
	CrawlSite           bool `json:"crawl_site"`
}

// ParamsSpec is the raw input from which an immutable Params is built.
type ParamsSpec struct {
	BaseURL    string
	PAT        string
	Domain     string
	CompanyURL string
	SupportURL string
	SessionID  string
	Accounts   int
	MaxTickets int
	MaxIssues  int

	// Settings nil means all steps enabled.
	Settings *Settings
}

// Params is the immutable per-run configuration record.
//
// Built once by NewParams and read through getters for the rest of the
// run, so no stage can quietly rewrite another stage's knobs.
type Params struct {
	baseURL    string
	pat        string
	domain     string
	companyURL string
	supportURL string
	sessionID  string
	accounts   int
	maxTickets int
	maxIssues  int
	settings   Settings
}

// NewParams applies defaults and freezes the run configuration.
func NewParams(spec ParamsSpec) Params {
	p := Params{
		baseURL:    spec.BaseURL,
		pat:        spec.PAT,
		domain:     spec.Domain,
		companyURL: spec.CompanyURL,
		supportURL: spec.SupportURL,
		sessionID:  spec.SessionID,
		accounts:   spec.Accounts,
		maxTickets: spec.MaxTickets,
		maxIssues:  spec.MaxIssues,
		settings:   Settings{DeactivateAutoReply: true, SetSLA: true, CrawlSite: true},
	}

	if spec.Settings != nil {
		p.settings = *spec.Settings
	}
	if p.accounts <= 0 {
		p.accounts = defaultAccounts
	}
	if p.maxTickets <= 0 {
		p.maxTickets = defaultMaxTickets
	}
	if p.maxTickets < minPerPart {
		p.maxTickets = minPerPart
	}
	if p.maxIssues <= 0 {
		p.maxIssues = defaultMaxIssues
	}
	if p.maxIssues < minPerPart {
		p.maxIssues = minPerPart
	}
	return p
}

func (p Params) BaseURL() string    { return p.baseURL }
func (p Params) PAT() string        { return p.pat }
func (p Params) Domain() string     { return p.domain }
func (p Params) CompanyURL() string { return p.companyURL }
func (p Params) SupportURL() string { return p.supportURL }
func (p Params) SessionID() string  { return p.sessionID }
func (p Params) Accounts() int      { return p.accounts }
func (p Params) MaxTickets() int    { return p.maxTickets }
func (p Params) MaxIssues() int     { return p.maxIssues }
func (p Params) Settings() Settings { return p.settings }

// TicketCount draws a per-part ticket count in [2, maxTickets].
func (p Params) TicketCount(r *rand.Rand) int {
	return minPerPart + r.Intn(p.maxTickets-minPerPart+1)
}

// IssueCount draws a per-part issue count in [2, maxIssues].
func (p Params) IssueCount(r *rand.Rand) int {
	return minPerPart + r.Intn(p.maxIssues-minPerPart+1)
}
