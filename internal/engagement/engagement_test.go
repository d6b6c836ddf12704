// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package engagement

import (
	"fmt"
	"testing"
	"time"
)

func TestLikeLedgerDeduplicates(t *testing.T) {
	l := NewLikeLedger()

	if !l.Record("sess", "alice", "Orbital:Halcyon") {
		t.Error("first like rejected")
	}
	if l.Record("sess", "alice", "Orbital:Halcyon") {
		t.Error("duplicate like accepted")
	}
	if !l.Record("sess", "alice", "Orbital:Belfast") {
		t.Error("different track rejected")
	}
	if !l.Record("sess", "bob", "Orbital:Halcyon") {
		t.Error("different client rejected")
	}
	if !l.HasLiked("sess", "alice", "Orbital:Halcyon") {
		t.Error("HasLiked lost the like")
	}

	l.PurgeSession("sess")
	if !l.Record("sess", "alice", "Orbital:Halcyon") {
		t.Error("like rejected after purge")
	}
}

func TestTempoBoardLastVoteWins(t *testing.T) {
	b := NewTempoBoard(5 * time.Minute)

	b.Vote("sess", "alice", TempoFaster)
	b.Vote("sess", "bob", TempoFaster)
	b.Vote("sess", "alice", TempoSlower)

	tally := b.Tally("sess")
	if tally.Faster != 1 || tally.Slower != 1 || tally.Total != 2 {
		t.Errorf("tally = %+v, want faster:1 slower:1 total:2", tally)
	}
}

func TestTempoBoardClearWithdrawsVote(t *testing.T) {
	b := NewTempoBoard(5 * time.Minute)

	b.Vote("sess", "alice", TempoPerfect)
	b.Vote("sess", "alice", TempoClear)

	if tally := b.Tally("sess"); tally.Total != 0 {
		t.Errorf("tally after clear = %+v, want empty", tally)
	}
}

func TestTempoBoardTTLExpiry(t *testing.T) {
	b := NewTempoBoard(5 * time.Minute)
	now := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })

	b.Vote("sess", "alice", TempoFaster)
	now = now.Add(3 * time.Minute)
	b.Vote("sess", "bob", TempoFaster)

	now = now.Add(3 * time.Minute)
	// Alice's vote is 6 minutes old, Bob's 3.
	tally := b.Tally("sess")
	if tally.Faster != 1 || tally.Total != 1 {
		t.Errorf("tally = %+v, want faster:1 total:1", tally)
	}
}

func TestTempoBoardResetReturnsFinalTally(t *testing.T) {
	b := NewTempoBoard(5 * time.Minute)

	b.Vote("sess", "alice", TempoFaster)
	b.Vote("sess", "bob", TempoPerfect)

	tally := b.Reset("sess")
	if tally.Faster != 1 || tally.Perfect != 1 || tally.Total != 2 {
		t.Errorf("reset tally = %+v", tally)
	}
	if after := b.Tally("sess"); after.Total != 0 {
		t.Errorf("votes survived reset: %+v", after)
	}
}

func TestNonceCacheDetectsReplay(t *testing.T) {
	c := NewNonceCache(10*time.Minute, 16)

	if c.Observe("n-1") {
		t.Error("fresh nonce reported seen")
	}
	if !c.Observe("n-1") {
		t.Error("replayed nonce not detected")
	}
	if c.Observe("") {
		t.Error("empty nonce deduplicated")
	}
	if c.Observe("") {
		t.Error("empty nonce deduplicated on repeat")
	}
}

func TestNonceCacheTTL(t *testing.T) {
	c := NewNonceCache(10*time.Minute, 16)
	now := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Observe("n-1")
	now = now.Add(11 * time.Minute)
	if c.Observe("n-1") {
		t.Error("expired nonce still deduplicated")
	}
	if c.Len() != 1 {
		t.Errorf("expired entry not evicted, len = %d", c.Len())
	}
}

func TestNonceCacheCapacityEvictsOldest(t *testing.T) {
	c := NewNonceCache(time.Hour, 4)

	for i := 0; i < 5; i++ {
		c.Observe(fmt.Sprintf("n-%d", i))
	}
	if c.Len() != 4 {
		t.Fatalf("len = %d, want 4", c.Len())
	}
	if c.Observe("n-0") {
		t.Error("oldest nonce survived capacity eviction")
	}
	if !c.Observe("n-4") {
		t.Error("newest nonce was evicted")
	}
}
