// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package presence

import (
	"testing"
	"time"
)

const window = 30 * time.Second

func newTestTracker() (*Tracker, *time.Time) {
	tr := NewTracker(window)
	now := time.Date(2026, 8, 1, 22, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	return tr, &now
}

func TestSubscribeReportsTransitionOnce(t *testing.T) {
	tr, _ := newTestTracker()

	if !tr.Subscribe("sess", "alice") {
		t.Error("first subscribe was not a transition")
	}
	if tr.Subscribe("sess", "alice") {
		t.Error("second tab reported a transition")
	}
	if got := tr.Count("sess"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}

	if !tr.Subscribe("sess", "bob") {
		t.Error("new client was not a transition")
	}
	if got := tr.Count("sess"); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestStickyWindowAbsorbsReconnect(t *testing.T) {
	tr, now := newTestTracker()

	tr.Subscribe("sess", "alice")
	tr.Unsubscribe("sess", "alice")

	// Inside the window the client still counts.
	*now = now.Add(10 * time.Second)
	if got := tr.Count("sess"); got != 1 {
		t.Errorf("count inside window = %d, want 1", got)
	}

	// Reconnecting inside the window is not a new transition.
	if tr.Subscribe("sess", "alice") {
		t.Error("reconnect inside sticky window reported a transition")
	}

	tr.Unsubscribe("sess", "alice")
	*now = now.Add(window + time.Second)
	if got := tr.Count("sess"); got != 0 {
		t.Errorf("count past window = %d, want 0", got)
	}

	// After the window lapses, rejoining is a fresh transition.
	if !tr.Subscribe("sess", "alice") {
		t.Error("rejoin after window was not a transition")
	}
}

func TestChangedCountsDebounce(t *testing.T) {
	tr, now := newTestTracker()

	tr.Subscribe("sess", "alice")
	tr.Subscribe("sess", "bob")

	changed := tr.ChangedCounts()
	if changed["sess"] != 2 {
		t.Errorf("changed = %v, want sess:2", changed)
	}

	// Nothing moved: the next tick must be silent.
	if changed := tr.ChangedCounts(); len(changed) != 0 {
		t.Errorf("idle tick reported changes: %v", changed)
	}

	tr.Unsubscribe("sess", "bob")
	// Still inside bob's sticky window, count unchanged.
	if changed := tr.ChangedCounts(); len(changed) != 0 {
		t.Errorf("sticky departure reported early: %v", changed)
	}

	*now = now.Add(window + time.Second)
	changed = tr.ChangedCounts()
	if changed["sess"] != 1 {
		t.Errorf("settled count = %v, want sess:1", changed)
	}
}

func TestNoteBroadcastSuppressesHeartbeatRepeat(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Subscribe("sess", "alice")
	tr.NoteBroadcast("sess", 1)

	if changed := tr.ChangedCounts(); len(changed) != 0 {
		t.Errorf("heartbeat repeated an inline broadcast: %v", changed)
	}
}

func TestPurgeSession(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Subscribe("sess", "alice")
	tr.PurgeSession("sess")

	if got := tr.Count("sess"); got != 0 {
		t.Errorf("count after purge = %d, want 0", got)
	}
	if changed := tr.ChangedCounts(); len(changed) != 0 {
		t.Errorf("purged session still tracked: %v", changed)
	}
}

func TestSweepStale(t *testing.T) {
	tr, now := newTestTracker()

	tr.Subscribe("sess", "alice")
	tr.Subscribe("sess", "bob")
	tr.Unsubscribe("sess", "alice")

	*now = now.Add(11 * time.Minute)
	tr.SweepStale(10 * time.Minute)

	// bob still holds a connection; alice is gone.
	if got := tr.Count("sess"); got != 1 {
		t.Errorf("count after sweep = %d, want 1", got)
	}
}
