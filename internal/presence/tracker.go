// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package presence derives a stable per-session crowd size from noisy
// connection churn. A client is present while it holds at least one
// connection or disconnected within the sticky grace window, so page
// reloads and tab switches don't make the count flicker.
package presence

import (
	"sync"
	"time"
)

// entry tracks one client's connections within one session.
type entry struct {
	connections int
	lastSeen    time.Time
}

// Tracker counts listener presence per session.
type Tracker struct {
	mu            sync.Mutex
	sessions      map[string]map[string]*entry
	lastBroadcast map[string]int
	stickyWindow  time.Duration
	now           func() time.Time
}

// NewTracker creates a tracker with the given sticky grace window.
func NewTracker(stickyWindow time.Duration) *Tracker {
	return &Tracker{
		sessions:      make(map[string]map[string]*entry),
		lastBroadcast: make(map[string]int),
		stickyWindow:  stickyWindow,
		now:           time.Now,
	}
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// present reports whether the entry counts toward the crowd (mu held).
func (t *Tracker) present(e *entry, now time.Time) bool {
	return e.connections > 0 || now.Sub(e.lastSeen) <= t.stickyWindow
}

// Subscribe records a client connection joining the session.
// Returns true only on a true presence transition — the client was not
// counted before this call. Extra tabs from an already-present client
// return false so count-only churn stays silent.
func (t *Tracker) Subscribe(sessionID, clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	clients, ok := t.sessions[sessionID]
	if !ok {
		clients = make(map[string]*entry)
		t.sessions[sessionID] = clients
	}

	now := t.now()
	e, ok := clients[clientID]
	if !ok {
		clients[clientID] = &entry{connections: 1, lastSeen: now}
		return true
	}

	wasPresent := t.present(e, now)
	e.connections++
	e.lastSeen = now
	return !wasPresent
}

// Unsubscribe records a client connection leaving the session.
// No inline broadcast follows — the departure settles through the debounced
// heartbeat once the sticky window elapses.
func (t *Tracker) Unsubscribe(sessionID, clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[sessionID][clientID]
	if !ok {
		return
	}
	if e.connections > 0 {
		e.connections--
	}
	e.lastSeen = t.now()
}

// countLocked computes the crowd size for a session (mu held).
func (t *Tracker) countLocked(sessionID string, now time.Time) int {
	count := 0
	for _, e := range t.sessions[sessionID] {
		if t.present(e, now) {
			count++
		}
	}
	return count
}

// Count returns the current crowd size for the session.
func (t *Tracker) Count(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(sessionID, t.now())
}

// ChangedCounts recomputes every tracked session's count and returns those
// that differ from the last value handed out, updating the cache. The
// heartbeat broadcasts exactly this delta, bounding traffic to
// O(sessions-with-change) per tick.
func (t *Tracker) ChangedCounts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	changed := make(map[string]int)
	for sessionID := range t.sessions {
		count := t.countLocked(sessionID, now)
		if last, ok := t.lastBroadcast[sessionID]; !ok || last != count {
			t.lastBroadcast[sessionID] = count
			changed[sessionID] = count
		}
	}
	return changed
}

// NoteBroadcast records an inline broadcast so the next heartbeat doesn't
// repeat it.
func (t *Tracker) NoteBroadcast(sessionID string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastBroadcast[sessionID] = count
}

// PurgeSession drops all presence state for an ended session.
func (t *Tracker) PurgeSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
	delete(t.lastBroadcast, sessionID)
}

// SweepStale removes entries with no connections whose last activity is
// older than threshold, and forgets empty sessions.
func (t *Tracker) SweepStale(threshold time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for sessionID, clients := range t.sessions {
		for clientID, e := range clients {
			if e.connections == 0 && now.Sub(e.lastSeen) > threshold {
				delete(clients, clientID)
			}
		}
		if len(clients) == 0 {
			delete(t.sessions, sessionID)
			delete(t.lastBroadcast, sessionID)
		}
	}
}
