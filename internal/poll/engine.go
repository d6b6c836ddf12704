// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package poll implements the per-session live poll state machine:
// None → Active → Ended, with at most one active poll per session, timed
// auto-close, and per-client vote records for idempotent re-delivery.
package poll

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrPollActive indicates the session already has an active poll.
	ErrPollActive = errors.New("a poll is already active for this session")

	// ErrNotFound indicates no active poll matches the id.
	ErrNotFound = errors.New("poll not found or already ended")

	// ErrWrongSession indicates the poll exists but belongs to a different
	// session than the caller claimed.
	ErrWrongSession = errors.New("poll does not belong to session")

	// ErrAlreadyVoted indicates the client voted before; the prior choice
	// accompanies the error so the caller can echo authoritative state.
	ErrAlreadyVoted = errors.New("client already voted")

	// ErrOptionOutOfRange indicates the option index is invalid.
	ErrOptionOutOfRange = errors.New("option index out of range")
)

// activePoll is the engine-internal mutable record.
type activePoll struct {
	id        int64
	sessionID string
	question  string
	options   []string
	votes     []int
	voted     map[string]int
	endsAt    *time.Time
	timer     *time.Timer
}

// Snapshot is an immutable copy of poll state.
type Snapshot struct {
	ID        int64
	SessionID string
	Question  string
	Options   []string
	Votes     []int
	Total     int
	EndsAt    *time.Time
}

// Result is the terminal outcome of a poll.
type Result struct {
	Snapshot
	WinnerIndex int
	Cancelled   bool
}

// snapshot copies the record (mu held).
func (p *activePoll) snapshot() Snapshot {
	snap := Snapshot{
		ID:        p.id,
		SessionID: p.sessionID,
		Question:  p.question,
		Options:   append([]string(nil), p.options...),
		Votes:     append([]int(nil), p.votes...),
		EndsAt:    p.endsAt,
	}
	for _, v := range p.votes {
		snap.Total += v
	}
	return snap
}

// winnerIndex is the argmax of vote counts; ties resolve to the first index.
func winnerIndex(votes []int) int {
	winner := 0
	for i, v := range votes {
		if v > votes[winner] {
			winner = i
		}
	}
	return winner
}

// Engine manages active polls across sessions.
type Engine struct {
	mu        sync.Mutex
	bySession map[string]*activePoll
	byID      map[int64]*activePoll

	// onExpire is invoked from the auto-close timer goroutine after a poll
	// expires; it runs outside the engine lock.
	onExpire func(Result)
}

// NewEngine creates an empty poll engine.
func NewEngine() *Engine {
	return &Engine{
		bySession: make(map[string]*activePoll),
		byID:      make(map[int64]*activePoll),
	}
}

// SetExpireHandler installs the callback fired when a poll auto-closes.
func (e *Engine) SetExpireHandler(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExpire = fn
}

// Start activates a poll that was already persisted under pollID.
// Fails when the session has an active poll. A positive duration schedules
// the one-shot auto-close timer.
func (e *Engine) Start(sessionID string, pollID int64, question string, options []string, duration time.Duration) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.bySession[sessionID]; exists {
		return Snapshot{}, ErrPollActive
	}

	p := &activePoll{
		id:        pollID,
		sessionID: sessionID,
		question:  question,
		options:   append([]string(nil), options...),
		votes:     make([]int, len(options)),
		voted:     make(map[string]int),
	}
	if duration > 0 {
		endsAt := time.Now().Add(duration)
		p.endsAt = &endsAt
		p.timer = time.AfterFunc(duration, func() { e.expire(pollID) })
	}

	e.bySession[sessionID] = p
	e.byID[pollID] = p
	return p.snapshot(), nil
}

// expire is the auto-close timer callback. The poll may have been ended by
// another path since the timer was scheduled, so removal decides: only the
// path that actually removes the poll emits the result.
func (e *Engine) expire(pollID int64) {
	e.mu.Lock()
	p, ok := e.byID[pollID]
	if !ok {
		e.mu.Unlock()
		return
	}
	result := e.removeLocked(p, false)
	handler := e.onExpire
	e.mu.Unlock()

	if handler != nil {
		handler(result)
	}
}

// removeLocked takes the poll out of the active maps and builds its final
// result (mu held).
func (e *Engine) removeLocked(p *activePoll, cancelled bool) Result {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(e.bySession, p.sessionID)
	delete(e.byID, p.id)
	return Result{
		Snapshot:    p.snapshot(),
		WinnerIndex: winnerIndex(p.votes),
		Cancelled:   cancelled,
	}
}

// Vote records a client's choice on an active poll.
// A repeat vote returns ErrAlreadyVoted with the standing option index; the
// aggregate never counts a client twice.
func (e *Engine) Vote(pollID int64, clientID string, optionIndex int) (Snapshot, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.byID[pollID]
	if !ok {
		return Snapshot{}, 0, ErrNotFound
	}
	if prior, voted := p.voted[clientID]; voted {
		return p.snapshot(), prior, ErrAlreadyVoted
	}
	if optionIndex < 0 || optionIndex >= len(p.options) {
		return Snapshot{}, 0, ErrOptionOutOfRange
	}

	p.votes[optionIndex]++
	p.voted[clientID] = optionIndex
	return p.snapshot(), optionIndex, nil
}

// End terminates the active poll for pollID. The poll must belong to
// sessionID: a caller may only close polls of the session it owns, so a
// mismatch leaves the poll running.
func (e *Engine) End(sessionID string, pollID int64, cancelled bool) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.byID[pollID]
	if !ok {
		return Result{}, ErrNotFound
	}
	if p.sessionID != sessionID {
		return Result{}, ErrWrongSession
	}
	return e.removeLocked(p, cancelled), nil
}

// StateFor returns the active poll for a session personalized for one
// client: whether that client voted and for which option. Late joiners
// restore their poll UI from exactly this.
func (e *Engine) StateFor(sessionID, clientID string) (Snapshot, int, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.bySession[sessionID]
	if !ok {
		return Snapshot{}, 0, false, false
	}
	prior, voted := p.voted[clientID]
	return p.snapshot(), prior, voted, true
}

// ActivePollID returns the id of the session's active poll, if any.
func (e *Engine) ActivePollID(sessionID string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.bySession[sessionID]
	if !ok {
		return 0, false
	}
	return p.id, true
}

// PurgeSession silently removes the session's active poll, stopping its
// timer. The caller persists the closure; no result broadcast follows
// because the session itself is ending.
func (e *Engine) PurgeSession(sessionID string) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.bySession[sessionID]
	if !ok {
		return Result{}, false
	}
	return e.removeLocked(p, true), true
}
