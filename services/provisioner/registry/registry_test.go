// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBegin_InitialState(t *testing.T) {
	r := NewRegistry()

	id := r.Begin(KindGenerate, nil)
	if id == "" {
		t.Fatal("Begin returned empty session ID")
	}

	state, ok := r.Get(id)
	if !ok {
		t.Fatal("Get did not find new run")
	}
	if state.Kind != KindGenerate {
		t.Errorf("Kind = %q, want %q", state.Kind, KindGenerate)
	}
	if state.Progress != 0 {
		t.Errorf("Progress = %d, want 0", state.Progress)
	}
	if state.Status != "Initializing..." {
		t.Errorf("Status = %q, want Initializing...", state.Status)
	}
	if state.Complete {
		t.Error("new run should not be complete")
	}
	if state.StartedAt.IsZero() || state.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestUpdate_ProgressNeverMovesBackwards(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)

	r.Update(id, "halfway", 50)
	r.Update(id, "late report from earlier stage", 30)

	state, _ := r.Get(id)
	if state.Progress != 50 {
		t.Errorf("Progress = %d, want 50 (backward update must clamp)", state.Progress)
	}
	if state.Status != "late report from earlier stage" {
		t.Errorf("Status should still advance, got %q", state.Status)
	}
}

func TestUpdate_ProgressCapsAtHundred(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindCleanup, nil)

	r.Update(id, "overshoot", 140)

	state, _ := r.Get(id)
	if state.Progress != 100 {
		t.Errorf("Progress = %d, want 100", state.Progress)
	}
}

func TestUpdate_UnknownSessionIsIgnored(t *testing.T) {
	r := NewRegistry()
	r.Update("ghost", "status", 10) // must not panic
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestFinish_SetsCompleteAtFull(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)
	r.Update(id, "working", 60)

	r.Finish(id, "Content generation completed successfully")

	state, _ := r.Get(id)
	if !state.Complete {
		t.Error("run should be complete")
	}
	if state.Progress != 100 {
		t.Errorf("Progress = %d, want 100", state.Progress)
	}
}

func TestFail_KeepsRunIncomplete(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)

	r.Fail(id, errors.New("org unreachable"))

	state, _ := r.Get(id)
	if state.Complete {
		t.Error("failed run must not report complete")
	}
	if state.Error != "org unreachable" {
		t.Errorf("Error = %q, want org unreachable", state.Error)
	}
	if !strings.HasPrefix(state.Status, "Error: ") {
		t.Errorf("Status = %q, want Error: prefix", state.Status)
	}
}

func TestGet_StaleRunTimesOut(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)
	r.Update(id, "working", 40)

	r.now = func() time.Time { return time.Now().Add(StaleAfter + time.Minute) }

	state, _ := r.Get(id)
	if state.Error != "operation timed out" {
		t.Errorf("Error = %q, want operation timed out", state.Error)
	}
	if state.Status != "Error: operation timed out" {
		t.Errorf("Status = %q", state.Status)
	}
}

func TestGet_CompleteRunNeverTimesOut(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)
	r.Finish(id, "done")

	r.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	state, _ := r.Get(id)
	if state.Error != "" {
		t.Errorf("complete run should not time out, got error %q", state.Error)
	}
}

func TestGet_UnknownSession(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("ghost"); ok {
		t.Error("Get should report unknown session")
	}
}

func TestSubscribe_DeliversCurrentThenLatest(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)

	ch, stop, ok := r.Subscribe(id)
	if !ok {
		t.Fatal("Subscribe failed for live run")
	}
	defer stop()

	first := <-ch
	if first.Progress != 0 {
		t.Errorf("initial snapshot Progress = %d, want 0", first.Progress)
	}

	// Two quick updates without a read in between: the channel keeps
	// only the newest snapshot.
	r.Update(id, "stage one", 10)
	r.Update(id, "stage two", 20)

	latest := <-ch
	if latest.Progress != 20 {
		t.Errorf("latest snapshot Progress = %d, want 20", latest.Progress)
	}
}

func TestSubscribe_UnknownSession(t *testing.T) {
	r := NewRegistry()
	if _, _, ok := r.Subscribe("ghost"); ok {
		t.Error("Subscribe should fail for unknown session")
	}
}

func TestSubscribe_StopClosesChannel(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)

	ch, stop, _ := r.Subscribe(id)
	<-ch
	stop()

	if _, open := <-ch; open {
		t.Error("channel should be closed after stop")
	}

	// A second stop must not panic.
	stop()
}

func TestRemove_ClosesSubscribers(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)

	ch, _, _ := r.Subscribe(id)
	<-ch

	r.Remove(id)

	if _, open := <-ch; open {
		t.Error("channel should be closed after Remove")
	}
	if _, ok := r.Get(id); ok {
		t.Error("run should be gone after Remove")
	}
}

func TestCancel_InvokesStoredFunc(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	id := r.Begin(KindGenerate, cancel)

	if !r.Cancel(id) {
		t.Fatal("Cancel should report success for run with cancel func")
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("context should be cancelled")
	}
}

func TestCancel_WithoutStoredFunc(t *testing.T) {
	r := NewRegistry()
	id := r.Begin(KindGenerate, nil)

	if r.Cancel(id) {
		t.Error("Cancel should report false when no cancel func registered")
	}
	if r.Cancel("ghost") {
		t.Error("Cancel should report false for unknown session")
	}
}
