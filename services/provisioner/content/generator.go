// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package content turns completion-model output into demo tenant content.
//
// Every prompt demands strict JSON and every response is cleaned of markdown
// fences before parsing, because chat models wrap JSON in ```json blocks
// often enough that trusting the contract alone loses runs. The product
// hierarchy is the only retried generation: it is the backbone the later
// stages hang work items on, so a malformed response there is worth three
// attempts. Ticket and issue generation is single-shot per part; a bad
// response skips that part and the run continues.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinterlante1206/DemoForge/services/provisioner/llm"
)

// ErrRetriesExhausted is returned when hierarchy generation fails to produce
// parseable JSON within the attempt cap.
var ErrRetriesExhausted = errors.New("generation retries exhausted")

// hierarchyAttempts caps how often a malformed hierarchy is regenerated.
const hierarchyAttempts = 3

// Default models. The hierarchy needs the stronger model to hold the nested
// shape; tickets and issues are volume work.
const (
	DefaultHierarchyModel = "gpt-4"
	DefaultWorkModel      = "gpt-3.5-turbo"
)

// Work-item vocabularies offered to the model. Values pass through to
// payloads verbatim; the pipeline maps stage names onto tenant stage ids.
var (
	TicketSeverities = []string{"low", "medium", "high", "blocker"}
	TicketStages     = []string{"resolved", "queued", "in_development", "awaiting_customer_response"}
	IssuePriorities  = []string{"p3", "p2", "p1", "p0"}
	IssueStages      = []string{"triage", "in_development", "in_review", "completed"}
)

// Hierarchy maps capability name -> feature name -> sub-feature names.
type Hierarchy map[string]map[string][]string

// TicketSeed is one generated support ticket before payload assembly.
type TicketSeed struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
	Stage    string `json:"stage"`
}

// IssueSeed is one generated engineering issue before payload assembly.
type IssueSeed struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	Stage    string `json:"stage"`
}

// Generator drives a completion backend with the demo content prompts.
type Generator struct {
	LLM            llm.CompletionClient
	HierarchyModel string
	WorkModel      string
}

// NewGenerator returns a Generator with the default model split.
func NewGenerator(client llm.CompletionClient) *Generator {
	return &Generator{
		LLM:            client,
		HierarchyModel: DefaultHierarchyModel,
		WorkModel:      DefaultWorkModel,
	}
}

const hierarchySystemPrompt = `You understand product management terminology for SaaS platforms.
Your task is to represent the hierarchy of a company's product as a detailed JSON output, following the structure:
Capability, Feature, and Subfeature. Use public information about the company's domain and, where specific data is unavailable, use your imagination to create believable product details.
CRITICAL: You must return ONLY a valid JSON object. No other text, no explanations, no markdown.
The response must be a perfect JSON object that can be parsed directly.
You are to use the exact JSON format and pattern of:
{
"capability name": {
    "feature name": ["subfeature name"]
}
}
IMPORTANT:
1. Use only double quotes for JSON structure
2. Return only the JSON object, nothing else
3. Ensure all JSON syntax is valid
4. Do not include any explanations or additional text`

// ProductHierarchy generates the capability/feature/sub-feature tree for a
// company domain. Transport failures and malformed JSON both consume an
// attempt; exhausting the cap returns an error wrapping ErrRetriesExhausted.
func (g *Generator) ProductHierarchy(ctx context.Context, domain string) (Hierarchy, error) {
	user := fmt.Sprintf("Visualize the detailed product hierarchy for %s without placeholders.", domain)

	var lastErr error
	for attempt := 1; attempt <= hierarchyAttempts; attempt++ {
		raw, err := g.LLM.Complete(ctx, g.HierarchyModel, hierarchySystemPrompt, user)
		if err != nil {
			lastErr = err
			slog.Warn("hierarchy generation attempt failed", "attempt", attempt, "error", err)
			continue
		}

		var hierarchy Hierarchy
		if err := json.Unmarshal([]byte(CleanJSON(raw)), &hierarchy); err != nil {
			lastErr = fmt.Errorf("invalid hierarchy JSON: %w", err)
			slog.Warn("hierarchy response unparseable", "attempt", attempt, "error", err)
			continue
		}
		if len(hierarchy) == 0 {
			lastErr = errors.New("hierarchy is empty")
			slog.Warn("hierarchy response empty", "attempt", attempt)
			continue
		}
		slog.Info("product hierarchy generated", "capabilities", len(hierarchy), "attempt", attempt)
		return hierarchy, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// Tickets generates count support tickets for one part. A parse failure is
// returned to the caller, which skips the part.
func (g *Generator) Tickets(ctx context.Context, domain, partName string, count int) ([]TicketSeed, error) {
	system := fmt.Sprintf(`You have been trained on all products from %s. Your task is to create %d support tickets for the part %s. Each ticket must have:
- A descriptive title of approximately 10 words
- A relevant description of 80 words
- A severity level from this list: %s
- A stage from this list: %s
CRITICAL: You must return ONLY a valid JSON array. No other text, no explanations, no markdown.
The response must be a perfect JSON array that can be parsed directly.
Each ticket must exactly match this structure:
{
"title": "Ticket Title",
"body": "Ticket Description",
"severity": "severity_level",
"stage": "stage_name"
}
IMPORTANT:
1. Use only double quotes for JSON structure
2. Include all required fields exactly as shown
3. Return only the JSON array, nothing else
4. Ensure all JSON syntax is valid`,
		domain, count, partName,
		strings.Join(TicketSeverities, ", "), strings.Join(TicketStages, ", "))
	user := fmt.Sprintf("Create %d support tickets for part %s and provide the JSON output.", count, partName)

	raw, err := g.LLM.Complete(ctx, g.WorkModel, system, user)
	if err != nil {
		return nil, fmt.Errorf("ticket generation for %s failed: %w", partName, err)
	}
	var tickets []TicketSeed
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &tickets); err != nil {
		return nil, fmt.Errorf("invalid ticket JSON for %s: %w", partName, err)
	}
	return tickets, nil
}

// Issues generates count engineering issues for one part.
func (g *Generator) Issues(ctx context.Context, domain, partName string, count int) ([]IssueSeed, error) {
	system := fmt.Sprintf(`You have been trained on all products from %s. Your task is to create %d engineering issues for the part %s. Each issue must have:
- A descriptive title of approximately 10 words
- A relevant description of 80 words
- A priority level from this list: %s (ordered from lowest to highest)
- A stage from this list: %s
CRITICAL: You must return ONLY a valid JSON array. No other text, no explanations, no markdown.
The response must be a perfect JSON array that can be parsed directly.
Each issue must exactly match this structure:
{
"title": "Issue Title",
"body": "Issue Description",
"priority": "priority_level",
"stage": "stage_name"
}
IMPORTANT:
1. Use only double quotes for JSON structure
2. Include all required fields exactly as shown
3. Return only the JSON array, nothing else
4. Ensure all JSON syntax is valid`,
		domain, count, partName,
		strings.Join(IssuePriorities, ", "), strings.Join(IssueStages, ", "))
	user := fmt.Sprintf("Create %d engineering issues for part %s and provide the JSON output.", count, partName)

	raw, err := g.LLM.Complete(ctx, g.WorkModel, system, user)
	if err != nil {
		return nil, fmt.Errorf("issue generation for %s failed: %w", partName, err)
	}
	var issues []IssueSeed
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &issues); err != nil {
		return nil, fmt.Errorf("invalid issue JSON for %s: %w", partName, err)
	}
	return issues, nil
}

// CleanJSON strips markdown code fences and surrounding whitespace so a
// fenced-but-valid response still parses.
func CleanJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}
