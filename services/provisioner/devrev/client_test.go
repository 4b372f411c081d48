// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the DevRev tenant client

package devrev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// --- Test server helpers ---

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL+"/", "eyJtest.token.sig")
	return client, server
}

func jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// --- Pagination ---

func TestListAll_Pagination(t *testing.T) {
	var cursorsSeen []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts.list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		cursor := r.URL.Query().Get("cursor")
		cursorsSeen = append(cursorsSeen, cursor)

		switch cursor {
		case "":
			jsonResponse(w, http.StatusOK, map[string]interface{}{
				"accounts":    []map[string]interface{}{{"id": "ACC-1"}, {"id": "ACC-2"}},
				"next_cursor": "page2",
			})
		case "page2":
			jsonResponse(w, http.StatusOK, map[string]interface{}{
				"accounts": []map[string]interface{}{{"id": "ACC-3"}},
			})
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	})
	client, server := newTestClient(handler)
	defer server.Close()

	objects, err := client.ListAll(context.Background(), "accounts")
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objects))
	}
	for i, want := range []string{"ACC-1", "ACC-2", "ACC-3"} {
		if got := StringAt(objects[i], "id"); got != want {
			t.Errorf("object %d id = %q, want %q", i, got, want)
		}
	}
	if len(cursorsSeen) != 2 || cursorsSeen[0] != "" || cursorsSeen[1] != "page2" {
		t.Errorf("cursor sequence = %v, want [\"\" page2]", cursorsSeen)
	}
}

func TestListAll_HyphenatedTypeKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"rev_orgs": []map[string]interface{}{{"id": "REV-1", "display_name": "Acme"}},
		})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	objects, err := client.ListAll(context.Background(), "rev-orgs")
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(objects) != 1 || StringAt(objects[0], "display_name") != "Acme" {
		t.Errorf("rev-orgs objects = %v", objects)
	}
}

func TestListAll_CustomStagesDeviation(t *testing.T) {
	page := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stages.custom.list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		page++
		if page == 1 {
			jsonResponse(w, http.StatusOK, map[string]interface{}{
				"result": []map[string]interface{}{{"id": "stage/1", "name": "queued"}},
				"cursor": "more",
			})
			return
		}
		// Literal "end" cursor must terminate the loop.
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"result": []map[string]interface{}{{"id": "stage/2", "name": "resolved"}},
			"cursor": "end",
		})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	objects, err := client.ListAll(context.Background(), "stages.custom")
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(objects))
	}
	if page != 2 {
		t.Errorf("expected exactly 2 pages fetched, got %d", page)
	}
}

func TestListAll_EmptyResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]interface{}{"parts": []map[string]interface{}{}})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	objects, err := client.ListAll(context.Background(), "parts")
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if objects == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(objects) != 0 {
		t.Errorf("expected 0 objects, got %d", len(objects))
	}
}

// --- Auth and errors ---

func TestRequestsCarryBearerToken(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		jsonResponse(w, http.StatusOK, map[string]interface{}{})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	if _, err := client.Post(context.Background(), "dev-orgs.self", map[string]interface{}{}); err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if gotAuth != "Bearer eyJtest.token.sig" {
		t.Errorf("Authorization = %q, want Bearer token", gotAuth)
	}
}

func TestCreate_ConflictIsTyped(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusConflict, map[string]interface{}{"message": "account already exists"})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	_, err := client.Create(context.Background(), "accounts", map[string]interface{}{"display_name": "Acme"})
	if err == nil {
		t.Fatal("expected error on 409")
	}
	if !IsConflict(err) {
		t.Errorf("IsConflict(%v) = false, want true", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not *APIError: %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Path != "accounts.create" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestIsInactiveDeactivation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			"inactive 400",
			&APIError{StatusCode: 400, Body: `{"message":"snap-in cannot be deactivated from inactive state"}`},
			true,
		},
		{"other 400", &APIError{StatusCode: 400, Body: `{"message":"bad id"}`}, false},
		{"conflict", &APIError{StatusCode: 409, Body: "cannot be deactivated from inactive state"}, false},
		{"wrapped", fmt.Errorf("deactivate: %w", &APIError{StatusCode: 400, Body: "cannot be deactivated from inactive state"}), true},
		{"plain error", errors.New("cannot be deactivated from inactive state"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInactiveDeactivation(tt.err); got != tt.want {
				t.Errorf("IsInactiveDeactivation = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Deletion ---

func TestDeleteMany_PartialFailures(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["id"] == "PROD-2" {
			jsonResponse(w, http.StatusInternalServerError, map[string]interface{}{"message": "boom"})
			return
		}
		jsonResponse(w, http.StatusOK, map[string]interface{}{})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	var calls []int
	result := client.DeleteMany(context.Background(), "parts",
		[]string{"PROD-2", "PROD-3", "PROD-4"},
		func(done, total int) { calls = append(calls, done) })

	if result.Total != 3 || result.Deleted != 2 {
		t.Errorf("result = %+v, want Total 3 Deleted 2", result)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != "PROD-2" {
		t.Errorf("Failed = %+v", result.Failed)
	}
	if len(calls) != 3 || calls[2] != 3 {
		t.Errorf("progress calls = %v, want [1 2 3]", calls)
	}
}

// --- Org identity ---

func TestDevOrgID_StripsPrefix(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dev-orgs.self" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"dev_org": map[string]interface{}{"display_id": "DEV-2Fe3rIPsq"},
		})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	id, err := client.DevOrgID(context.Background())
	if err != nil {
		t.Fatalf("DevOrgID returned error: %v", err)
	}
	if id != "2Fe3rIPsq" {
		t.Errorf("DevOrgID = %q, want 2Fe3rIPsq", id)
	}
}

func TestDevOrgID_MissingDisplayID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]interface{}{"dev_org": map[string]interface{}{}})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	_, err := client.DevOrgID(context.Background())
	if !errors.Is(err, ErrNoOrgIdentity) {
		t.Errorf("error = %v, want ErrNoOrgIdentity", err)
	}
}

// --- Snap-ins ---

func TestListSnapIns(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"snap_ins": []map[string]interface{}{
				{
					"id": "snap/1", "display_id": "SNAP-1", "state": "active", "is_active": true,
					"automations": []map[string]interface{}{{"name": "auto_reply"}},
				},
				{"id": "snap/2", "display_id": "SNAP-2", "state": "disabled", "is_active": false},
			},
		})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	snapIns, err := client.ListSnapIns(context.Background())
	if err != nil {
		t.Fatalf("ListSnapIns returned error: %v", err)
	}
	if len(snapIns) != 2 {
		t.Fatalf("expected 2 snap-ins, got %d", len(snapIns))
	}
	first := snapIns[0]
	if first.DisplayID != "SNAP-1" || !first.IsActive || len(first.Automations) != 1 || first.Automations[0].Name != "auto_reply" {
		t.Errorf("snap-in decoded wrong: %+v", first)
	}
}

// --- Crawl jobs ---

func TestCreateWebCrawlJob_PayloadShape(t *testing.T) {
	var gotBody map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"web_crawler_job": map[string]interface{}{"id": "job/1", "state": "queued"},
		})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	job, err := client.CreateWebCrawlJob(context.Background(), "https://acme.example", 2)
	if err != nil {
		t.Fatalf("CreateWebCrawlJob returned error: %v", err)
	}
	if job == nil || job.ID != "job/1" {
		t.Fatalf("job = %+v", job)
	}

	urls, _ := gotBody["urls"].([]interface{})
	if len(urls) != 1 || urls[0] != "https://acme.example" {
		t.Errorf("urls = %v", urls)
	}
	parts, _ := gotBody["applies_to_parts"].([]interface{})
	if len(parts) != 1 || parts[0] != "PROD-1" {
		t.Errorf("applies_to_parts = %v", parts)
	}
	if gotBody["max_depth"] != float64(2) || gotBody["frequency"] != float64(0) {
		t.Errorf("depth/frequency = %v/%v", gotBody["max_depth"], gotBody["frequency"])
	}
}

func TestCreateWebCrawlJob_FailureReturnsNilJob(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusBadGateway, map[string]interface{}{"message": "crawler down"})
	})
	client, server := newTestClient(handler)
	defer server.Close()

	job, err := client.CreateWebCrawlJob(context.Background(), "https://acme.example", 4)
	if err == nil {
		t.Fatal("expected error")
	}
	if job != nil {
		t.Errorf("job = %+v, want nil", job)
	}
}

// --- Nested field helpers ---

func TestStringAt(t *testing.T) {
	obj := map[string]interface{}{
		"account": map[string]interface{}{"id": "ACC-9", "owned_by": []interface{}{"don:dev/1"}},
	}
	if got := StringAt(obj, "account", "id"); got != "ACC-9" {
		t.Errorf("StringAt = %q", got)
	}
	if got := StringAt(obj, "account", "missing"); got != "" {
		t.Errorf("StringAt missing = %q, want empty", got)
	}
	if got := StringAt(obj, "account", "owned_by"); got != "" {
		t.Errorf("StringAt non-string = %q, want empty", got)
	}
	if got := StringAt(nil, "anything"); got != "" {
		t.Errorf("StringAt nil = %q, want empty", got)
	}
}
