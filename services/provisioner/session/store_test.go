// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for session artifact routing, journaling, and archiving.

package session

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestArtifactPath_SuffixRouting(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"devusers", "input_files"},
		{"accounts", "input_files"},
		{"parts", "input_files"},
		{"custom_stages_loaded", "input_files"},
		{"devusers_responses", "output_files"},
		{"accounts_processed", "output_files"},
		{"revusers_existing", "output_files"},
		{"tickets_failed", "output_files"},
		{"trails_gpt", "output_files"},
		{"cleanup_status_responses", "output_files"},
	}

	for _, tt := range tests {
		path := s.ArtifactPath("sess", tt.name)
		if !strings.Contains(path, string(filepath.Separator)+tt.want+string(filepath.Separator)) {
			t.Errorf("ArtifactPath(%q) = %q, want under %s", tt.name, path, tt.want)
		}
		if !strings.HasSuffix(path, tt.name+".json") {
			t.Errorf("ArtifactPath(%q) = %q, want .json file", tt.name, path)
		}
	}
}

func TestSaveArtifact_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("run1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := map[string]any{"full_name": "Maya Chen", "state": "shadow"}
	path, err := s.SaveArtifact("run1", "devusers", payload)
	if err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !strings.Contains(string(raw), "\n  \"full_name\"") {
		t.Errorf("artifact should be pretty-printed, got %q", raw)
	}

	var got map[string]any
	if err := s.LoadArtifact("run1", "devusers", &got); err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if got["full_name"] != "Maya Chen" {
		t.Errorf("round trip lost data: %v", got)
	}
}

func TestSaveArtifact_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveArtifact("ghost", "devusers", map[string]string{})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLoadArtifact_Missing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("run1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var out map[string]any
	err := s.LoadArtifact("run1", "never_saved", &out)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestZip_ContainsBothDirectories(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("run1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.SaveArtifact("run1", "accounts", []string{"Acme"}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if _, err := s.SaveArtifact("run1", "accounts_responses", []string{"ok"}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	path, err := s.Zip("run1")
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}
	if filepath.Base(path) != "session_run1.zip" {
		t.Errorf("archive name = %s, want session_run1.zip", filepath.Base(path))
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	want := []string{"input_files/accounts.json", "output_files/accounts_responses.json"}
	if len(names) != len(want) {
		t.Fatalf("archive entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("archive entry %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestZip_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Zip("ghost")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDelete_RemovesDirectoryAndArchive(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("run1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.SaveArtifact("run1", "accounts", []string{"Acme"}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if _, err := s.Zip("run1"); err != nil {
		t.Fatalf("Zip: %v", err)
	}

	if err := s.Delete("run1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if s.Exists("run1") {
		t.Error("session directory should be gone")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "session_run1.zip")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive should be gone, stat err = %v", err)
	}
}

func TestSessions_ListsOnlyDirectories(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("run1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create("run2"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.SaveArtifact("run1", "accounts", []string{"Acme"}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if _, err := s.Zip("run1"); err != nil {
		t.Fatalf("Zip: %v", err)
	}

	infos, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
		if info.ModTime.IsZero() {
			t.Errorf("session %s has zero mod time", info.ID)
		}
	}
	sort.Strings(ids)

	if len(ids) != 2 || ids[0] != "run1" || ids[1] != "run2" {
		t.Errorf("Sessions = %v, want [run1 run2]", ids)
	}
}
