// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package engagement guards the anonymous crowd's input: per-client like
// idempotency, decaying tempo votes, and nonce-based message deduplication.
// Dancers carry no credentials, so all anti-abuse here is identity-by-
// convention plus structural rate limiting.
package engagement

import "sync"

// LikeLedger records which tracks each client already liked in a session.
type LikeLedger struct {
	mu    sync.Mutex
	liked map[string]map[string]map[string]struct{} // sessionID -> clientID -> trackKey
}

// NewLikeLedger creates an empty ledger.
func NewLikeLedger() *LikeLedger {
	return &LikeLedger{liked: make(map[string]map[string]map[string]struct{})}
}

// Record marks the track liked by the client within the session.
// Returns false when the like is a duplicate; the ledger is unchanged.
func (l *LikeLedger) Record(sessionID, clientID, trackKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	clients, ok := l.liked[sessionID]
	if !ok {
		clients = make(map[string]map[string]struct{})
		l.liked[sessionID] = clients
	}
	tracks, ok := clients[clientID]
	if !ok {
		tracks = make(map[string]struct{})
		clients[clientID] = tracks
	}
	if _, dup := tracks[trackKey]; dup {
		return false
	}
	tracks[trackKey] = struct{}{}
	return true
}

// HasLiked reports whether the client already liked the track.
func (l *LikeLedger) HasLiked(sessionID, clientID, trackKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.liked[sessionID][clientID][trackKey]
	return ok
}

// PurgeSession clears all like state for an ended session.
func (l *LikeLedger) PurgeSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.liked, sessionID)
}
