// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are forwarded
// to a remote tenant API. Using these validators keeps malformed credentials
// and URLs from ever leaving the process, and rejects obvious injection
// attempts before a run is registered.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// patPattern matches a JWT-shaped personal access token: three dot-separated
// base64url segments. Platform-issued PATs always start with "ey" (the
// base64url encoding of `{"`).
var patPattern = regexp.MustCompile(`^ey[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// domainPattern matches a short product-domain phrase used to steer content
// generation ("banking", "video streaming", "fleet telematics").
var domainPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 .,&\-]{0,79}$`)

// ValidatePAT validates a personal access token before it is attached to
// outbound Authorization headers.
//
// Valid tokens:
//   - start with "ey" (JWT header prefix)
//   - have exactly three non-empty base64url segments
//   - are between 20 and 4096 characters
//
// Returns an error if the token is invalid.
//
// Example:
//
//	if err := validation.ValidatePAT(req.PAT); err != nil {
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	    return
//	}
func ValidatePAT(pat string) error {
	if pat == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if len(pat) < 20 || len(pat) > 4096 {
		return fmt.Errorf("token length out of range")
	}
	if !patPattern.MatchString(pat) {
		return fmt.Errorf("token is not a valid personal access token")
	}
	return nil
}

// ValidateBaseURL validates a tenant API base URL.
//
// Valid URLs use the https scheme (http is allowed for localhost so local
// fakes can be targeted in development) and carry a host. The path, if any,
// is preserved.
func ValidateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("http is only allowed for localhost targets")
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// SanitizeDomain normalizes and validates a product-domain phrase.
// Returns the trimmed phrase if valid, or an error if invalid.
//
// The phrase is interpolated into generation prompts, so anything that is
// not a short plain-text description is rejected.
func SanitizeDomain(domain string) (string, error) {
	normalized := strings.TrimSpace(domain)
	if normalized == "" {
		return "", fmt.Errorf("domain cannot be empty")
	}
	if !domainPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid domain phrase: %q", normalized)
	}
	return normalized, nil
}
