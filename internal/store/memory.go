// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mixcast/mixcast/internal/protocol"
)

// MemoryStore is an in-memory Store for tests and single-binary development.
type MemoryStore struct {
	mu sync.Mutex

	sessions map[string]SessionRecord
	ended    map[string]time.Time
	tracks   map[string][]protocol.Track
	likes    []LikeRecord
	tempo    map[string]map[string]TempoTally // sessionID -> trackKey -> tally

	nextPollID int64
	polls      map[int64]PollRecord
	pollVotes  map[int64]map[string]int // pollID -> clientID -> option
	pollClosed map[int64]bool

	// FailOps forces errors for the named operations, for failure-path tests.
	FailOps map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]SessionRecord),
		ended:      make(map[string]time.Time),
		tracks:     make(map[string][]protocol.Track),
		tempo:      make(map[string]map[string]TempoTally),
		polls:      make(map[int64]PollRecord),
		pollVotes:  make(map[int64]map[string]int),
		pollClosed: make(map[int64]bool),
		FailOps:    make(map[string]bool),
	}
}

// failing reports whether the named op is configured to fail.
func (s *MemoryStore) failing(op string) error {
	if s.FailOps[op] {
		return fmt.Errorf("memory store: forced %s failure", op)
	}
	return nil
}

// PersistSession upserts the session row.
func (s *MemoryStore) PersistSession(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("session"); err != nil {
		return err
	}
	s.sessions[rec.SessionID] = rec
	return nil
}

// SessionPersisted reports whether the session row exists.
func (s *MemoryStore) SessionPersisted(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("session_persisted"); err != nil {
		return false, err
	}
	_, ok := s.sessions[sessionID]
	return ok, nil
}

// PersistTrack appends a track-play row.
func (s *MemoryStore) PersistTrack(_ context.Context, sessionID string, track protocol.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("track"); err != nil {
		return err
	}
	s.tracks[sessionID] = append(s.tracks[sessionID], track)
	return nil
}

// PersistLike appends a like row.
func (s *MemoryStore) PersistLike(_ context.Context, rec LikeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("like"); err != nil {
		return err
	}
	s.likes = append(s.likes, rec)
	return nil
}

// PersistTempoVotes stores a track's final tempo tally.
func (s *MemoryStore) PersistTempoVotes(_ context.Context, sessionID, trackKey string, tally TempoTally) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("tempo"); err != nil {
		return err
	}
	if s.tempo[sessionID] == nil {
		s.tempo[sessionID] = make(map[string]TempoTally)
	}
	s.tempo[sessionID][trackKey] = tally
	return nil
}

// CreatePoll inserts the poll row and assigns an id.
func (s *MemoryStore) CreatePoll(_ context.Context, rec PollRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("poll_create"); err != nil {
		return 0, err
	}
	s.nextPollID++
	s.polls[s.nextPollID] = rec
	s.pollVotes[s.nextPollID] = make(map[string]int)
	return s.nextPollID, nil
}

// PersistPollVote appends one client's vote.
func (s *MemoryStore) PersistPollVote(_ context.Context, pollID int64, clientID string, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("poll_vote"); err != nil {
		return err
	}
	votes, ok := s.pollVotes[pollID]
	if !ok {
		return fmt.Errorf("memory store: unknown poll %d", pollID)
	}
	votes[clientID] = optionIndex
	return nil
}

// ClosePoll records the final result.
func (s *MemoryStore) ClosePoll(_ context.Context, pollID int64, _ []int, _ int, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("poll_close"); err != nil {
		return err
	}
	if _, ok := s.polls[pollID]; !ok {
		return fmt.Errorf("memory store: unknown poll %d", pollID)
	}
	s.pollClosed[pollID] = true
	return nil
}

// EndSession marks the session ended.
func (s *MemoryStore) EndSession(_ context.Context, sessionID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("session_end"); err != nil {
		return err
	}
	s.ended[sessionID] = endedAt
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close(context.Context) error { return nil }

// Test inspection helpers.

// LikeCount returns the number of persisted likes.
func (s *MemoryStore) LikeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.likes)
}

// TrackCount returns the number of persisted track rows for a session.
func (s *MemoryStore) TrackCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks[sessionID])
}

// SessionEnded reports whether EndSession was recorded for the session.
func (s *MemoryStore) SessionEnded(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ended[sessionID]
	return ok
}

// PollIsClosed reports whether ClosePoll was recorded.
func (s *MemoryStore) PollIsClosed(pollID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollClosed[pollID]
}

// TempoTallyFor returns the stored tally for a session track.
func (s *MemoryStore) TempoTallyFor(sessionID, trackKey string) (TempoTally, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally, ok := s.tempo[sessionID][trackKey]
	return tally, ok
}
