// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/mixcast/mixcast/internal/protocol"
)

func TestRegisterIsIdempotentForSameConnection(t *testing.T) {
	r := NewRegistry()

	snap, resumed, err := r.Register("sess-1", "DJ Nova", "user-1", true, 42)
	if err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if resumed {
		t.Error("first register reported resumed")
	}
	if snap.SessionID != "sess-1" || snap.DJName != "DJ Nova" || !snap.Verified {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	snap2, resumed, err := r.Register("sess-1", "DJ Nova Renamed", "user-1", true, 42)
	if err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
	if !resumed {
		t.Error("re-register did not report resumed")
	}
	if snap2.DJName != "DJ Nova Renamed" {
		t.Errorf("dj name not refreshed: %q", snap2.DJName)
	}
	if snap2.StartedAt != snap.StartedAt {
		t.Error("re-register changed startedAt")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 session, got %d", r.Len())
	}
}

func TestReRegisterRefreshesIdentity(t *testing.T) {
	r := NewRegistry()

	snap, _, err := r.Register("sess-1", "DJ Nova", "", false, 42)
	if err != nil {
		t.Fatalf("anonymous register failed: %v", err)
	}
	if snap.Verified || snap.DJUserID != "" {
		t.Fatalf("anonymous register produced identity: %+v", snap)
	}

	snap2, resumed, err := r.Register("sess-1", "DJ Nova", "user-1", true, 42)
	if err != nil {
		t.Fatalf("verified re-register failed: %v", err)
	}
	if !resumed {
		t.Error("re-register did not report resumed")
	}
	if !snap2.Verified || snap2.DJUserID != "user-1" {
		t.Errorf("identity not refreshed on re-register: %+v", snap2)
	}

	got, ok := r.Get("sess-1")
	if !ok {
		t.Fatal("session missing after re-register")
	}
	if !got.Verified || got.DJUserID != "user-1" {
		t.Errorf("stored snapshot still anonymous: %+v", got)
	}
}

func TestRegisterRejectsDifferentConnection(t *testing.T) {
	r := NewRegistry()
	if _, _, err := r.Register("sess-1", "DJ Nova", "", false, 1); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, _, err := r.Register("sess-1", "Impostor", "", false, 2)
	if !errors.Is(err, ErrOwnedElsewhere) {
		t.Errorf("expected ErrOwnedElsewhere, got %v", err)
	}
}

func TestSetTrackOwnershipAndChangeDetection(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", "DJ Nova", "", false, 1)

	track := protocol.Track{Artist: "Orbital", Title: "Halcyon", BPM: 126}

	if _, _, _, err := r.SetTrack("sess-1", 2, track); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner set track: expected ErrNotOwner, got %v", err)
	}
	if _, _, _, err := r.SetTrack("missing", 1, track); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session: expected ErrNotFound, got %v", err)
	}

	snap, changed, prevKey, err := r.SetTrack("sess-1", 1, track)
	if err != nil {
		t.Fatalf("set track failed: %v", err)
	}
	if !changed || prevKey != "" {
		t.Errorf("first track: changed=%v prevKey=%q", changed, prevKey)
	}
	if snap.CurrentTrack == nil || snap.CurrentTrack.Title != "Halcyon" {
		t.Errorf("track not installed: %+v", snap.CurrentTrack)
	}

	// Same logical track with different fingerprint must not count as a change.
	retry := track
	retry.Fingerprint = map[string]float64{"energy": 0.9}
	_, changed, _, err = r.SetTrack("sess-1", 1, retry)
	if err != nil {
		t.Fatalf("re-set track failed: %v", err)
	}
	if changed {
		t.Error("fingerprint churn reported as track change")
	}

	next := protocol.Track{Artist: "Orbital", Title: "Belfast"}
	_, changed, prevKey, err = r.SetTrack("sess-1", 1, next)
	if err != nil {
		t.Fatalf("next track failed: %v", err)
	}
	if !changed || prevKey != "Orbital:Halcyon" {
		t.Errorf("track change: changed=%v prevKey=%q", changed, prevKey)
	}
}

func TestClearTrack(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", "DJ Nova", "", false, 1)

	key, err := r.ClearTrack("sess-1", 1)
	if err != nil {
		t.Fatalf("clear with nothing playing failed: %v", err)
	}
	if key != "" {
		t.Errorf("expected empty key, got %q", key)
	}

	r.SetTrack("sess-1", 1, protocol.Track{Artist: "Moderat", Title: "A New Error"})
	key, err = r.ClearTrack("sess-1", 1)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if key != "Moderat:A New Error" {
		t.Errorf("unexpected cleared key %q", key)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", "DJ Nova", "", false, 1)

	if _, ok := r.Remove("sess-1"); !ok {
		t.Fatal("first remove reported missing")
	}
	if _, ok := r.Remove("sess-1"); ok {
		t.Error("second remove reported found")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestSessionsOwnedBy(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "DJ A", "", false, 1)
	r.Register("b", "DJ B", "", false, 2)
	r.Register("c", "DJ C", "", false, 1)

	owned := r.SessionsOwnedBy(1)
	if len(owned) != 2 {
		t.Fatalf("expected 2 owned sessions, got %v", owned)
	}
	for _, id := range owned {
		if id != "a" && id != "c" {
			t.Errorf("unexpected session %q", id)
		}
	}
}

func TestSweepCandidates(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)
	now := base
	r.SetClock(func() time.Time { return now })

	r.Register("idle", "DJ Idle", "", false, 1)
	r.Register("fresh", "DJ Fresh", "", false, 2)

	// Keep "fresh" active past the idle threshold.
	now = base.Add(3 * time.Hour)
	r.SetTrack("fresh", 2, protocol.Track{Artist: "X", Title: "Y"})

	candidates := r.SweepCandidates(2*time.Hour, 12*time.Hour)
	if len(candidates) != 1 || candidates[0] != "idle" {
		t.Errorf("expected [idle], got %v", candidates)
	}

	// Max age catches even active sessions.
	now = base.Add(13 * time.Hour)
	r.SetTrack("fresh", 2, protocol.Track{Artist: "X", Title: "Z"})
	candidates = r.SweepCandidates(24*time.Hour, 12*time.Hour)
	found := false
	for _, id := range candidates {
		if id == "fresh" {
			found = true
		}
	}
	if !found {
		t.Errorf("max age did not catch active session: %v", candidates)
	}
}

func TestAnnouncementLifecycle(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", "DJ Nova", "", false, 1)

	ann, err := r.SetAnnouncement("sess-1", 1, "last track coming up", time.Minute)
	if err != nil {
		t.Fatalf("set announcement failed: %v", err)
	}
	if ann.ExpiresAt == nil {
		t.Fatal("ttl announcement missing expiry")
	}
	if ann.Expired(ann.Timestamp.Add(30 * time.Second)) {
		t.Error("announcement expired early")
	}
	if !ann.Expired(ann.Timestamp.Add(2 * time.Minute)) {
		t.Error("announcement never expired")
	}

	if err := r.ClearAnnouncement("sess-1", 2); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner cleared announcement: %v", err)
	}
	if err := r.ClearAnnouncement("sess-1", 1); err != nil {
		t.Fatalf("clear announcement failed: %v", err)
	}
	snap, _ := r.Get("sess-1")
	if snap.Announcement != nil {
		t.Error("announcement survived clear")
	}
}
