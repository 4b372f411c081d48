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

// Automation is a snap-in automation descriptor. Stock snap-ins are
// identified by their first automation's name.
type Automation struct {
	Name string `json:"name"`
}

// SnapIn is an installed snap-in as returned by snap-ins.list.
type SnapIn struct {
	ID          string       `json:"id"`
	DisplayID   string       `json:"display_id"`
	State       string       `json:"state"`
	IsActive    bool         `json:"is_active"`
	Automations []Automation `json:"automations"`
}

// CrawlJob is the handle returned by web-crawler-jobs.create.
type CrawlJob struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// FailedDelete records one object that could not be deleted.
type FailedDelete struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// DeleteResult summarizes a bulk deletion. Failed holds one entry per
// object that errored; the loop itself never aborts.
type DeleteResult struct {
	Total   int            `json:"total"`
	Deleted int            `json:"deleted"`
	Failed  []FailedDelete `json:"failed,omitempty"`
}

// StringAt walks nested JSON objects and returns the string at path, or ""
// when any step is missing or the wrong shape.
//
// Create responses nest the entity under its type key, so id extraction is
// a two-step walk:
//
//	id := devrev.StringAt(resp, "dev_user", "id")
func StringAt(obj map[string]interface{}, path ...string) string {
	cur := interface{}(obj)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}

// ObjectAt walks nested JSON objects and returns the object at path, or nil.
func ObjectAt(obj map[string]interface{}, path ...string) map[string]interface{} {
	cur := interface{}(obj)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[key]
	}
	m, _ := cur.(map[string]interface{})
	return m
}
