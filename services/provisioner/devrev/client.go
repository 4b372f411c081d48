// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package devrev is a REST client for one DevRev tenant.
//
// A Client is built per run from the base URL and personal access token the
// operator supplied. All calls attach the token as a Bearer Authorization
// header. List endpoints paginate with an opaque cursor; create and delete
// endpoints are POSTs against dotted action paths (works.create,
// parts.delete). Non-2xx responses surface as *APIError so callers can
// branch on status codes.
//
// The client performs no retries and no rate limiting. Error recovery
// policy (conflict fallbacks, partial-failure bookkeeping) belongs to the
// pipeline driving it.
package devrev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL targets the production internal API.
const DefaultBaseURL = "https://api.devrev.ai/internal/"

// maxErrorBody caps how much of an error response is retained on APIError.
const maxErrorBody = 2048

// HTTPClient is the transport dependency, satisfied by *http.Client and by
// test fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a single tenant.
type Client struct {
	BaseURL string
	HTTP    HTTPClient

	token string
}

// NewClient builds a Client for the tenant at baseURL. An empty baseURL
// falls back to DefaultBaseURL; a missing trailing slash is added so action
// paths concatenate cleanly.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
}

// do issues one request and decodes the JSON object response. A nil result
// map is returned for empty bodies.
func (c *Client) do(ctx context.Context, method, path string, body any) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s body: %w", path, err)
		}
		reader = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       string(raw),
		}
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return out, nil
}

// Post sends a JSON body to an action path and returns the decoded response.
func (c *Client) Post(ctx context.Context, path string, body any) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Create posts a payload to <objectType>.create. The response nests the
// created entity under its singular snake_case type key.
func (c *Client) Create(ctx context.Context, objectType string, payload map[string]interface{}) (map[string]interface{}, error) {
	return c.Post(ctx, objectType+".create", payload)
}

// ListAll drains <objectType>.list across all cursor pages.
//
// The response array lives under the type name with hyphens folded to
// underscores ("rev-orgs" -> "rev_orgs") and the next cursor under
// "next_cursor". Dotted types such as "stages.custom" deviate: their array
// is under "result" and their cursor under "cursor". Pagination stops when
// the cursor field is absent, empty, or the literal "end".
func (c *Client) ListAll(ctx context.Context, objectType string) ([]map[string]interface{}, error) {
	listPath := objectType + ".list"
	respKey := strings.ReplaceAll(objectType, "-", "_")
	cursorKey := "next_cursor"
	if strings.Contains(objectType, ".") {
		respKey = "result"
		cursorKey = "cursor"
	}

	objects := make([]map[string]interface{}, 0)
	cursor := ""
	for {
		path := listPath
		if cursor != "" {
			path = listPath + "?cursor=" + url.QueryEscape(cursor)
		}
		page, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", objectType, err)
		}

		items, _ := page[respKey].([]interface{})
		for _, item := range items {
			if obj, ok := item.(map[string]interface{}); ok {
				objects = append(objects, obj)
			}
		}

		next, _ := page[cursorKey].(string)
		if next == "" || next == "end" {
			break
		}
		cursor = next
	}
	return objects, nil
}

// Delete removes one object via <objectType>.delete.
func (c *Client) Delete(ctx context.Context, objectType, id string) error {
	_, err := c.Post(ctx, objectType+".delete", map[string]interface{}{"id": id})
	return err
}

// DeleteMany deletes objects sequentially, recording failures per id
// instead of aborting. progress, when non-nil, is called after every
// attempt with the running count.
func (c *Client) DeleteMany(ctx context.Context, objectType string, ids []string, progress func(done, total int)) DeleteResult {
	result := DeleteResult{Total: len(ids)}
	for i, id := range ids {
		if err := c.Delete(ctx, objectType, id); err != nil {
			slog.Warn("delete failed", "object_type", objectType, "id", id, "error", err)
			result.Failed = append(result.Failed, FailedDelete{ID: id, Error: err.Error()})
		} else {
			result.Deleted++
		}
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	return result
}

// DevOrgID resolves the tenant's org identity from dev-orgs.self. The org
// display id arrives as "DEV-<id>"; the prefix is stripped because metric
// definition DONs embed the bare id.
func (c *Client) DevOrgID(ctx context.Context) (string, error) {
	resp, err := c.Post(ctx, "dev-orgs.self", map[string]interface{}{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve dev org: %w", err)
	}
	displayID := StringAt(resp, "dev_org", "display_id")
	if displayID == "" {
		return "", ErrNoOrgIdentity
	}
	return strings.TrimPrefix(displayID, "DEV-"), nil
}

// ListSnapIns returns the tenant's installed snap-ins.
func (c *Client) ListSnapIns(ctx context.Context) ([]SnapIn, error) {
	page, err := c.do(ctx, http.MethodGet, "snap-ins.list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list snap-ins: %w", err)
	}
	raw, err := json.Marshal(page["snap_ins"])
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode snap-ins: %w", err)
	}
	var snapIns []SnapIn
	if err := json.Unmarshal(raw, &snapIns); err != nil {
		return nil, fmt.Errorf("failed to decode snap-ins: %w", err)
	}
	return snapIns, nil
}

// DeactivateSnapIn deactivates a snap-in by display id without force.
func (c *Client) DeactivateSnapIn(ctx context.Context, displayID string) error {
	_, err := c.Post(ctx, "snap-ins.deactivate", map[string]interface{}{
		"force": false,
		"id":    displayID,
	})
	return err
}

// CreateSLA creates an SLA in draft state and returns the raw response.
func (c *Client) CreateSLA(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.Post(ctx, "slas.create", body)
}

// TransitionSLA moves an SLA to the given status ("published").
func (c *Client) TransitionSLA(ctx context.Context, id, status string) error {
	_, err := c.Post(ctx, "slas.transition", map[string]interface{}{
		"id":     id,
		"status": status,
	})
	return err
}

// CreateWebCrawlJob starts a crawl of url against the default product part.
// Crawling is best-effort: failures are logged and returned, and callers
// treat a nil job as "no crawl" and keep provisioning.
func (c *Client) CreateWebCrawlJob(ctx context.Context, crawlURL string, maxDepth int) (*CrawlJob, error) {
	resp, err := c.Post(ctx, "web-crawler-jobs.create", map[string]interface{}{
		"urls":             []string{crawlURL},
		"applies_to_parts": []string{"PROD-1"},
		"max_depth":        maxDepth,
		"frequency":        0,
	})
	if err != nil {
		slog.Warn("web crawl job creation failed", "url", crawlURL, "error", err)
		return nil, err
	}
	job := &CrawlJob{
		ID:    StringAt(resp, "web_crawler_job", "id"),
		State: StringAt(resp, "web_crawler_job", "state"),
	}
	return job, nil
}
