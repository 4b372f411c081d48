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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jinterlante1206/DemoForge/pkg/ux"
)

// pollInterval is how often the run-following loop asks for progress.
var pollInterval = 2 * time.Second

const (
	// maxPollFailures bounds consecutive progress poll errors before the
	// loop gives up. Long runs should survive a transient network blip.
	maxPollFailures = 3

	progressBarWidth = 30
)

// runDoc mirrors the progress document the provisioner serves.
type runDoc struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Progress  int    `json:"progress"`
	Status    string `json:"status"`
	Complete  bool   `json:"complete"`
	Error     string `json:"error,omitempty"`
}

// serviceClient talks to the provisioner service over HTTP.
type serviceClient struct {
	baseURL string
	http    *http.Client
}

func newServiceClient(serviceURL string) *serviceClient {
	return &serviceClient{
		baseURL: strings.TrimRight(serviceURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// serviceError extracts the {"error": "..."} message a failing endpoint
// returns, falling back to the raw body.
func serviceError(statusCode int, body []byte) error {
	var doc struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err == nil && doc.Error != "" {
		return fmt.Errorf("service returned %d: %s", statusCode, doc.Error)
	}
	return fmt.Errorf("service returned %d: %s", statusCode, strings.TrimSpace(string(body)))
}

// startRun POSTs a run request and returns the accepted session id.
func (c *serviceClient) startRun(path string, body interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("could not encode the request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("could not reach the provisioner at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return "", serviceError(resp.StatusCode, respBody)
	}

	var accepted struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(respBody, &accepted); err != nil || accepted.SessionID == "" {
		return "", fmt.Errorf("unexpected accept response: %s", strings.TrimSpace(string(respBody)))
	}
	return accepted.SessionID, nil
}

// progress fetches the current run document for a session.
func (c *serviceClient) progress(sessionID string) (runDoc, error) {
	resp, err := c.http.Get(c.baseURL + "/v1/progress/" + sessionID)
	if err != nil {
		return runDoc{}, fmt.Errorf("could not reach the provisioner at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return runDoc{}, serviceError(resp.StatusCode, respBody)
	}

	var doc runDoc
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return runDoc{}, fmt.Errorf("unexpected progress response: %w", err)
	}
	return doc, nil
}

// followRun polls a run until it reaches a terminal state and renders
// progress along the way. It returns the terminal document; a run that
// ended in an error is reported through the document, not the error
// return, so callers can decide how to exit.
func (c *serviceClient) followRun(sessionID string) (runDoc, error) {
	render := newProgressRenderer(os.Stdout)
	failures := 0

	for {
		doc, err := c.progress(sessionID)
		if err != nil {
			failures++
			if failures >= maxPollFailures {
				render.close()
				return runDoc{}, err
			}
			time.Sleep(pollInterval)
			continue
		}
		failures = 0

		render.update(doc)
		if doc.Complete || doc.Error != "" {
			render.close()
			return doc, nil
		}
		time.Sleep(pollInterval)
	}
}

// download streams a finished session's zip bundle to the given path.
func (c *serviceClient) download(sessionID, outPath string) error {
	resp, err := c.http.Get(c.baseURL + "/v1/download/" + sessionID)
	if err != nil {
		return fmt.Errorf("could not reach the provisioner at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return serviceError(resp.StatusCode, respBody)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", outPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("download to %s failed: %w", outPath, err)
	}
	return nil
}

// health checks the service health endpoint.
func (c *serviceClient) health() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("could not reach the provisioner at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return serviceError(resp.StatusCode, respBody)
	}

	var doc struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(respBody, &doc); err != nil || doc.Status != "ok" {
		return fmt.Errorf("unexpected health response: %s", strings.TrimSpace(string(respBody)))
	}
	return nil
}

// ===== PROGRESS RENDERING =====

// progressRenderer draws run progress. On a TTY it redraws a single bar
// line in place; otherwise it prints one plain line per change so logs
// stay readable.
type progressRenderer struct {
	out          *os.File
	tty          bool
	lastProgress int
	lastStatus   string
	drew         bool
}

func newProgressRenderer(out *os.File) *progressRenderer {
	return &progressRenderer{
		out:          out,
		tty:          isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()),
		lastProgress: -1,
	}
}

func (r *progressRenderer) update(doc runDoc) {
	if doc.Progress == r.lastProgress && doc.Status == r.lastStatus {
		return
	}
	r.lastProgress = doc.Progress
	r.lastStatus = doc.Status

	if r.tty {
		bar := ux.ProgressBar(doc.Progress, 100, progressBarWidth)
		fmt.Fprintf(r.out, "\r\033[K%s  %s", bar, doc.Status)
		r.drew = true
		return
	}
	fmt.Fprintf(r.out, "PROGRESS: %d%% %s\n", doc.Progress, doc.Status)
}

// close terminates the in-place bar line so later output starts clean.
func (r *progressRenderer) close() {
	if r.tty && r.drew {
		fmt.Fprintln(r.out)
	}
}
