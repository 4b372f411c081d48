// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package seeds loads the name pools used to populate a demo org.
//
// Three CSV files under the seed directory supply the pools: dev_users.csv
// (column full_name), accounts.csv (column name), and rev_users.csv (column
// display_name). Extra columns are ignored. When a file is missing the
// packaged defaults for that pool are used instead, so a fresh checkout
// works without any data directory at all.
package seeds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Seed Files
// =============================================================================

const (
	// DevUsersFile holds support agent names, one per row.
	DevUsersFile = "dev_users.csv"

	// AccountsFile holds customer company names.
	AccountsFile = "accounts.csv"

	// RevUsersFile holds customer contact names.
	RevUsersFile = "rev_users.csv"
)

// columnFor maps each seed file to the CSV column carrying the name.
var columnFor = map[string]string{
	DevUsersFile: "full_name",
	AccountsFile: "name",
	RevUsersFile: "display_name",
}

// seedValidate checks individual rows before they enter a pool.
var seedValidate *validator.Validate

func init() {
	seedValidate = validator.New()
}

// seedRow is the validated shape of a single CSV cell.
type seedRow struct {
	Name string `validate:"required,max=200"`
}

// =============================================================================
// Packaged Defaults
// =============================================================================

// Default pools keep the service usable when no seed directory is mounted.
// They are intentionally small; real deployments mount their own CSVs.

var defaultDevUsers = []string{
	"Ava Thompson",
	"Ben Okafor",
	"Carmen Diaz",
	"Derek Liu",
	"Elena Petrova",
	"Felix Hartman",
	"Grace Nakamura",
	"Hector Alvarez",
	"Imani Brooks",
	"Jonas Keller",
	"Katia Sorensen",
	"Liam Gallagher",
}

var defaultAccounts = []string{
	"Acme Logistics",
	"Blue Harbor Foods",
	"Cascade Robotics",
	"Dunmore Financial",
	"Everbright Solar",
	"Foxglove Media",
	"Granite Peak Outfitters",
	"Horizon Dental Group",
	"Ironwood Manufacturing",
	"Juniper Analytics",
	"Kestrel Airways",
	"Lumen Health",
	"Meridian Textiles",
	"Northgate Motors",
	"Opaline Jewelers",
}

var defaultRevUsers = []string{
	"Aisha Rahman",
	"Bruno Castellano",
	"Chloe Martin",
	"Dmitri Volkov",
	"Esther Kim",
	"Farid Hosseini",
	"Gwen Appleton",
	"Hugo Lindqvist",
	"Ines Moreau",
	"Jack Whitfield",
}

// =============================================================================
// Set and Loader
// =============================================================================

// Set is one coherent reading of all three pools.
type Set struct {
	DevUsers []string
	Accounts []string
	RevUsers []string
}

// Loader reads seed CSVs from a directory.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads all three pools.
//
// # Description
//
// Each file is parsed independently. A missing file falls back to the
// packaged defaults with a warning. A malformed file (unreadable, or
// missing its name column) is an error: silently provisioning an org
// from defaults when the operator supplied data would be worse than
// failing.
//
// # Outputs
//
//   - Set: All three pools, never empty.
//   - error: Non-nil if a present file could not be parsed.
func (l *Loader) Load() (Set, error) {
	var set Set
	var err error

	if set.DevUsers, err = l.loadPool(DevUsersFile, defaultDevUsers); err != nil {
		return Set{}, err
	}
	if set.Accounts, err = l.loadPool(AccountsFile, defaultAccounts); err != nil {
		return Set{}, err
	}
	if set.RevUsers, err = l.loadPool(RevUsersFile, defaultRevUsers); err != nil {
		return Set{}, err
	}

	return set, nil
}

// loadPool reads one CSV pool, falling back to defaults when absent.
func (l *Loader) loadPool(file string, defaults []string) ([]string, error) {
	path := filepath.Join(l.dir, file)

	names, err := readColumn(path, columnFor[file])
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("seed file missing, using packaged defaults",
			"file", file,
			"defaults", len(defaults))
		return append([]string(nil), defaults...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", file, err)
	}

	if len(names) == 0 {
		slog.Warn("seed file has no usable rows, using packaged defaults", "file", file)
		return append([]string(nil), defaults...), nil
	}

	return names, nil
}

// readColumn extracts one named column from a CSV file, preserving row order.
func readColumn(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // Rows may carry trailing commentary columns
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in header %v", column, header)
	}

	var names []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if col >= len(record) {
			continue
		}

		row := seedRow{Name: strings.TrimSpace(record[col])}
		if row.Name == "" {
			continue
		}
		if err := seedValidate.Struct(row); err != nil {
			slog.Warn("skipping invalid seed row", "file", filepath.Base(path), "error", err)
			continue
		}

		names = append(names, row.Name)
	}

	return names, nil
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot holds the current seed pools behind a read lock.
//
// # Thread Safety
//
// Safe for concurrent use. Get returns the stored slices directly; callers
// must treat them as read-only. Replace swaps the whole Set atomically, so
// a pipeline run that captured a Set mid-flight keeps a coherent view.
type Snapshot struct {
	mu  sync.RWMutex
	set Set
}

// NewSnapshot creates a snapshot holding the given pools.
func NewSnapshot(set Set) *Snapshot {
	return &Snapshot{set: set}
}

// Get returns the current pools.
func (s *Snapshot) Get() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Replace swaps in a new reading of the pools.
func (s *Snapshot) Replace(set Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}
