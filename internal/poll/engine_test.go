// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package poll

import (
	"errors"
	"testing"
	"time"
)

func startPoll(t *testing.T, e *Engine, sessionID string, pollID int64) Snapshot {
	t.Helper()
	snap, err := e.Start(sessionID, pollID, "next genre?", []string{"techno", "house", "drum & bass"}, 0)
	if err != nil {
		t.Fatalf("start poll failed: %v", err)
	}
	return snap
}

func TestStartRejectsSecondActivePoll(t *testing.T) {
	e := NewEngine()
	startPoll(t, e, "sess", 1)

	if _, err := e.Start("sess", 2, "again?", []string{"a", "b"}, 0); !errors.Is(err, ErrPollActive) {
		t.Errorf("expected ErrPollActive, got %v", err)
	}
	// A different session is unaffected.
	if _, err := e.Start("other", 3, "q", []string{"a", "b"}, 0); err != nil {
		t.Errorf("unrelated session blocked: %v", err)
	}
}

func TestVoteCountsOncePerClient(t *testing.T) {
	e := NewEngine()
	startPoll(t, e, "sess", 1)

	snap, applied, err := e.Vote(1, "alice", 2)
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if applied != 2 || snap.Votes[2] != 1 || snap.Total != 1 {
		t.Errorf("vote not counted: applied=%d snap=%+v", applied, snap)
	}

	// Same client, different option: rejected, aggregate untouched,
	// standing choice returned.
	snap, applied, err = e.Vote(1, "alice", 0)
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	if applied != 2 {
		t.Errorf("standing option = %d, want 2", applied)
	}
	if snap.Total != 1 || snap.Votes[0] != 0 {
		t.Errorf("duplicate vote changed aggregate: %+v", snap)
	}

	if _, _, err := e.Vote(1, "bob", 5); !errors.Is(err, ErrOptionOutOfRange) {
		t.Errorf("expected ErrOptionOutOfRange, got %v", err)
	}
	if _, _, err := e.Vote(99, "bob", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEndIsTerminal(t *testing.T) {
	e := NewEngine()
	startPoll(t, e, "sess", 1)
	e.Vote(1, "alice", 0)
	e.Vote(1, "bob", 1)
	e.Vote(1, "carol", 1)

	result, err := e.End("sess", 1, false)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if result.WinnerIndex != 1 || result.Cancelled {
		t.Errorf("result = %+v", result)
	}

	if _, err := e.End("sess", 1, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("second end: expected ErrNotFound, got %v", err)
	}
	if _, _, err := e.Vote(1, "dave", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("vote after end: expected ErrNotFound, got %v", err)
	}
	if _, ok := e.ActivePollID("sess"); ok {
		t.Error("session still has an active poll")
	}
}

func TestEndRequiresOwningSession(t *testing.T) {
	e := NewEngine()
	startPoll(t, e, "sess", 1)

	if _, err := e.End("other", 1, false); !errors.Is(err, ErrWrongSession) {
		t.Fatalf("expected ErrWrongSession, got %v", err)
	}
	// The poll survives the rejected close.
	if _, ok := e.ActivePollID("sess"); !ok {
		t.Error("poll was removed by a foreign session's end")
	}
	if _, err := e.End("sess", 1, false); err != nil {
		t.Errorf("owning session end failed: %v", err)
	}
}

func TestWinnerTieResolvesToFirstIndex(t *testing.T) {
	tests := []struct {
		name  string
		votes []int
		want  int
	}{
		{"clear winner", []int{0, 3, 1}, 1},
		{"two-way tie", []int{2, 2, 0}, 0},
		{"all zero", []int{0, 0, 0}, 0},
		{"late tie", []int{1, 4, 4}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := winnerIndex(tt.votes); got != tt.want {
				t.Errorf("winnerIndex(%v) = %d, want %d", tt.votes, got, tt.want)
			}
		})
	}
}

func TestAutoCloseFiresExpireHandlerOnce(t *testing.T) {
	e := NewEngine()
	results := make(chan Result, 2)
	e.SetExpireHandler(func(r Result) { results <- r })

	if _, err := e.Start("sess", 1, "q", []string{"a", "b"}, 20*time.Millisecond); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	e.Vote(1, "alice", 1)

	select {
	case result := <-results:
		if result.ID != 1 || result.Cancelled || result.WinnerIndex != 1 {
			t.Errorf("expire result = %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expire handler never fired")
	}

	select {
	case <-results:
		t.Fatal("expire handler fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManualEndBeatsTimer(t *testing.T) {
	e := NewEngine()
	fired := make(chan Result, 1)
	e.SetExpireHandler(func(r Result) { fired <- r })

	e.Start("sess", 1, "q", []string{"a", "b"}, 50*time.Millisecond)
	if _, err := e.End("sess", 1, true); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("timer fired after manual end")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStateForPersonalizesLateJoin(t *testing.T) {
	e := NewEngine()
	startPoll(t, e, "sess", 1)
	e.Vote(1, "alice", 0)

	snap, option, voted, ok := e.StateFor("sess", "alice")
	if !ok || !voted || option != 0 {
		t.Errorf("alice state: ok=%v voted=%v option=%d", ok, voted, option)
	}
	if snap.Total != 1 {
		t.Errorf("snapshot total = %d", snap.Total)
	}

	_, _, voted, ok = e.StateFor("sess", "bob")
	if !ok || voted {
		t.Errorf("bob state: ok=%v voted=%v", ok, voted)
	}

	if _, _, _, ok := e.StateFor("quiet", "alice"); ok {
		t.Error("session without a poll reported state")
	}
}

func TestPurgeSessionIsSilent(t *testing.T) {
	e := NewEngine()
	fired := make(chan Result, 1)
	e.SetExpireHandler(func(r Result) { fired <- r })

	e.Start("sess", 1, "q", []string{"a", "b"}, 50*time.Millisecond)
	result, had := e.PurgeSession("sess")
	if !had || !result.Cancelled {
		t.Errorf("purge: had=%v result=%+v", had, result)
	}
	if _, had := e.PurgeSession("sess"); had {
		t.Error("second purge reported a poll")
	}

	select {
	case <-fired:
		t.Fatal("timer fired after purge")
	case <-time.After(150 * time.Millisecond):
	}
}
