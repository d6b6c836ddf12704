// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package engagement

import (
	"sync"
	"time"
)

// Tempo preferences accepted on the wire.
const (
	TempoFaster  = "faster"
	TempoSlower  = "slower"
	TempoPerfect = "perfect"
	TempoClear   = "clear"
)

// Tally is the aggregate tempo feedback for a session's current track.
type Tally struct {
	Faster  int
	Slower  int
	Perfect int
	Total   int
}

// tempoVote is one client's standing preference.
type tempoVote struct {
	preference string
	castAt     time.Time
}

// TempoBoard holds last-vote-wins tempo preferences per (session, client).
// Votes older than the TTL are excluded from tallies and lazily evicted on
// the next read.
type TempoBoard struct {
	mu    sync.Mutex
	votes map[string]map[string]*tempoVote
	ttl   time.Duration
	now   func() time.Time
}

// NewTempoBoard creates a board with the given vote TTL.
func NewTempoBoard(ttl time.Duration) *TempoBoard {
	return &TempoBoard{
		votes: make(map[string]map[string]*tempoVote),
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetClock overrides the time source for tests.
func (b *TempoBoard) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Vote records the client's preference, replacing any earlier vote.
// TempoClear removes the client's vote entirely.
func (b *TempoBoard) Vote(sessionID, clientID, preference string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if preference == TempoClear {
		delete(b.votes[sessionID], clientID)
		return
	}

	clients, ok := b.votes[sessionID]
	if !ok {
		clients = make(map[string]*tempoVote)
		b.votes[sessionID] = clients
	}
	clients[clientID] = &tempoVote{preference: preference, castAt: b.now()}
}

// Tally counts standing votes for the session, evicting expired ones.
func (b *TempoBoard) Tally(sessionID string) Tally {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tallyLocked(sessionID)
}

// tallyLocked counts and lazily evicts expired votes (mu held).
func (b *TempoBoard) tallyLocked(sessionID string) Tally {
	now := b.now()
	var tally Tally
	for clientID, vote := range b.votes[sessionID] {
		if now.Sub(vote.castAt) > b.ttl {
			delete(b.votes[sessionID], clientID)
			continue
		}
		switch vote.preference {
		case TempoFaster:
			tally.Faster++
		case TempoSlower:
			tally.Slower++
		case TempoPerfect:
			tally.Perfect++
		}
	}
	tally.Total = tally.Faster + tally.Slower + tally.Perfect
	return tally
}

// Reset clears all votes for the session (track change: fresh start).
// Returns the tally as it stood, for persistence of the finished track.
func (b *TempoBoard) Reset(sessionID string) Tally {
	b.mu.Lock()
	defer b.mu.Unlock()
	tally := b.tallyLocked(sessionID)
	delete(b.votes, sessionID)
	return tally
}

// PurgeSession clears all tempo state for an ended session.
func (b *TempoBoard) PurgeSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.votes, sessionID)
}
