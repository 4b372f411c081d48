// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devrev

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for client operations.
var (
	// ErrNoOrgIdentity is returned when dev-orgs.self yields a response
	// without a display_id. The org identity is required before any other
	// tenant call is attempted.
	ErrNoOrgIdentity = errors.New("dev org response carries no display_id")

	// ErrSnapInNotFound is returned when no snap-in on the tenant matches
	// the requested automation name.
	ErrSnapInNotFound = errors.New("snap-in not found")
)

// APIError represents a non-2xx response from the tenant API.
//
// Callers classify failures by StatusCode (via errors.As or the helpers
// below) rather than by matching message text.
type APIError struct {
	// StatusCode is the HTTP status returned by the tenant.
	StatusCode int `json:"status_code"`

	// Method and Path identify the failing call.
	Method string `json:"method"`
	Path   string `json:"path"`

	// Body is the raw response body, truncated to 2 KiB.
	Body string `json:"body,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// MarshalJSON renders the error for session artifacts.
func (e *APIError) MarshalJSON() ([]byte, error) {
	type alias APIError
	return json.Marshal((*alias)(e))
}

// IsConflict reports whether err is a tenant 409 response. Account creation
// returns 409 when the account already exists; callers fall back to listing.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsInactiveDeactivation reports whether err is the tenant's rejection of a
// deactivate call against an already-inactive snap-in. The API signals this
// as a 400 whose body names the inactive state, so the status code gates the
// body check.
func IsInactiveDeactivation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(apiErr.Body, "cannot be deactivated from inactive state")
}
