// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session stores the artifact journal each run leaves behind.
//
// Every run owns a directory under the store root, split into input_files
// (payloads sent to DevRev) and output_files (what came back, plus derived
// state). Artifacts are pretty-printed JSON so an operator can diff a run
// against the org afterwards. The whole directory can be zipped for
// download and is deleted by the sweeper once it goes stale.
package session

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrSessionNotFound is returned when a session directory does not exist.
var ErrSessionNotFound = errors.New("session not found")

const (
	inputDir  = "input_files"
	outputDir = "output_files"
)

// outputSuffixes route an artifact to output_files. Everything else is a
// request payload and lands in input_files.
var outputSuffixes = []string{"_responses", "_processed", "_existing", "_failed", "_gpt"}

// Store manages per-run artifact directories under a single root.
type Store struct {
	root string
}

// NewStore creates the store root if needed and returns the store.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating session root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory holding all sessions.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory for one session.
func (s *Store) Dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Create makes the input and output directories for a session.
func (s *Store) Create(sessionID string) error {
	for _, sub := range []string{inputDir, outputDir} {
		if err := os.MkdirAll(filepath.Join(s.Dir(sessionID), sub), 0755); err != nil {
			return fmt.Errorf("creating session %s: %w", sessionID, err)
		}
	}
	return nil
}

// Delete removes a session directory and its zip, if present.
func (s *Store) Delete(sessionID string) error {
	if err := os.RemoveAll(s.Dir(sessionID)); err != nil {
		return err
	}
	err := os.Remove(s.zipPath(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether a session directory is present.
func (s *Store) Exists(sessionID string) bool {
	info, err := os.Stat(s.Dir(sessionID))
	return err == nil && info.IsDir()
}

// ArtifactPath returns where an artifact lives, applying the suffix routing.
func (s *Store) ArtifactPath(sessionID, name string) string {
	sub := inputDir
	for _, suffix := range outputSuffixes {
		if strings.Contains(name, suffix) {
			sub = outputDir
			break
		}
	}
	return filepath.Join(s.Dir(sessionID), sub, name+".json")
}

// SaveArtifact journals one artifact as pretty-printed JSON.
//
// # Inputs
//
//   - sessionID: Session receiving the artifact.
//   - name: Artifact name without extension. Names containing _responses,
//     _processed, _existing, _failed, or _gpt are routed to output_files.
//   - payload: Any JSON-marshalable value.
//
// # Outputs
//
//   - string: The path written.
//   - error: ErrSessionNotFound if Create was never called for the session.
func (s *Store) SaveArtifact(sessionID, name string, payload any) (string, error) {
	if !s.Exists(sessionID) {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling %s: %w", name, err)
	}

	path := s.ArtifactPath(sessionID, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// LoadArtifact reads a journaled artifact back into out.
func (s *Store) LoadArtifact(sessionID, name string, out any) error {
	data, err := os.ReadFile(s.ArtifactPath(sessionID, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrSessionNotFound, sessionID, name)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// zipPath returns the download archive path for a session.
func (s *Store) zipPath(sessionID string) string {
	return filepath.Join(s.root, "session_"+sessionID+".zip")
}

// Zip archives a session directory for download.
//
// # Description
//
// Produces session_<id>.zip next to the session directory. Entries are
// stored relative to the session directory, so the archive unpacks to
// input_files/ and output_files/. An existing archive is overwritten.
//
// # Outputs
//
//   - string: Path to the archive.
//   - error: ErrSessionNotFound if the session directory is missing.
func (s *Store) Zip(sessionID string) (string, error) {
	dir := s.Dir(sessionID)
	if !s.Exists(sessionID) {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	target := s.zipPath(sessionID)
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return "", fmt.Errorf("archiving session %s: %w", sessionID, err)
	}

	if err := zw.Close(); err != nil {
		return "", err
	}
	return target, nil
}

// Info describes one stored session for the sweeper.
type Info struct {
	ID      string
	ModTime time.Time
}

// Sessions lists stored session directories, newest first not guaranteed.
func (s *Store) Sessions() ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{ID: entry.Name(), ModTime: fi.ModTime()})
	}
	return infos, nil
}
