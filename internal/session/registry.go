// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package session holds the authoritative in-memory map of live DJ sessions.
//
// The Registry is the single writer for LiveSession state. Higher-level
// cleanup (tempo flush, presence purge, broadcasts, persistence) is
// orchestrated by the coordinator through one idempotent end path; the
// registry only guards ownership and mutates the map.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/mixcast/mixcast/internal/metrics"
	"github.com/mixcast/mixcast/internal/protocol"
)

var (
	// ErrNotFound indicates no live session exists for the id.
	ErrNotFound = errors.New("session not found")

	// ErrNotOwner indicates the connection does not own the session.
	ErrNotOwner = errors.New("connection does not own session")

	// ErrOwnedElsewhere indicates another live connection owns the id.
	ErrOwnedElsewhere = errors.New("session registered by another connection")
)

// Announcement is the active DJ announcement for a session.
type Announcement struct {
	Message   string
	Timestamp time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the announcement has passed its expiry.
func (a *Announcement) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// liveSession is the registry-internal mutable record.
type liveSession struct {
	sessionID    string
	djName       string
	djUserID     string
	verified     bool
	startedAt    time.Time
	currentTrack *protocol.Track
	announcement *Announcement
	ownerConnID  uint64
	lastActivity time.Time
}

// Snapshot is an immutable copy of session state handed to callers.
type Snapshot struct {
	SessionID    string
	DJName       string
	DJUserID     string
	Verified     bool
	StartedAt    time.Time
	CurrentTrack *protocol.Track
	Announcement *Announcement
	OwnerConnID  uint64
}

// snapshot copies the record, cloning pointer fields.
func (s *liveSession) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   s.sessionID,
		DJName:      s.djName,
		DJUserID:    s.djUserID,
		Verified:    s.verified,
		StartedAt:   s.startedAt,
		OwnerConnID: s.ownerConnID,
	}
	if s.currentTrack != nil {
		t := *s.currentTrack
		snap.CurrentTrack = &t
	}
	if s.announcement != nil {
		a := *s.announcement
		snap.Announcement = &a
	}
	return snap
}

// Registry is the authoritative map of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*liveSession),
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Register creates a live session or idempotently re-confirms one.
//
// Re-registering an existing session from its owning connection is a no-op
// upsert (the dj name may refresh). A different live connection claiming an
// existing id is rejected; sessions only change hands after the previous
// owner's session ends.
func (r *Registry) Register(sessionID, djName, djUserID string, verified bool, ownerConnID uint64) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[sessionID]; ok {
		if existing.ownerConnID != ownerConnID {
			return Snapshot{}, false, ErrOwnedElsewhere
		}
		// Identity refreshes on the upsert: a re-register carrying a newly
		// valid token upgrades the session to verified.
		existing.djName = djName
		existing.djUserID = djUserID
		existing.verified = verified
		existing.lastActivity = r.now()
		return existing.snapshot(), true, nil
	}

	sess := &liveSession{
		sessionID:    sessionID,
		djName:       djName,
		djUserID:     djUserID,
		verified:     verified,
		startedAt:    r.now(),
		ownerConnID:  ownerConnID,
		lastActivity: r.now(),
	}
	r.sessions[sessionID] = sess
	metrics.LiveSessions.Set(float64(len(r.sessions)))
	return sess.snapshot(), false, nil
}

// checkOwner returns the record if ownerConnID owns it (mu held).
func (r *Registry) checkOwner(sessionID string, ownerConnID uint64) (*liveSession, error) {
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.ownerConnID != ownerConnID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// SetTrack installs the now-playing track, owner-only.
// Returns the updated snapshot, whether the track actually changed, and the
// dedup key of the previous track when one was displaced.
func (r *Registry) SetTrack(sessionID string, ownerConnID uint64, track protocol.Track) (Snapshot, bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.checkOwner(sessionID, ownerConnID)
	if err != nil {
		return Snapshot{}, false, "", err
	}
	sess.lastActivity = r.now()

	prevKey := ""
	changed := true
	if sess.currentTrack != nil {
		prevKey = sess.currentTrack.TrackKey()
		changed = !sess.currentTrack.Equal(track)
	}
	t := track
	sess.currentTrack = &t
	return sess.snapshot(), changed, prevKey, nil
}

// ClearTrack removes the now-playing track, owner-only.
// Returns the dedup key of the cleared track, "" when none was playing.
func (r *Registry) ClearTrack(sessionID string, ownerConnID uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.checkOwner(sessionID, ownerConnID)
	if err != nil {
		return "", err
	}
	sess.lastActivity = r.now()

	key := ""
	if sess.currentTrack != nil {
		key = sess.currentTrack.TrackKey()
	}
	sess.currentTrack = nil
	return key, nil
}

// SetAnnouncement installs the active announcement, owner-only.
func (r *Registry) SetAnnouncement(sessionID string, ownerConnID uint64, message string, ttl time.Duration) (Announcement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.checkOwner(sessionID, ownerConnID)
	if err != nil {
		return Announcement{}, err
	}
	sess.lastActivity = r.now()

	ann := Announcement{Message: message, Timestamp: r.now()}
	if ttl > 0 {
		expires := ann.Timestamp.Add(ttl)
		ann.ExpiresAt = &expires
	}
	sess.announcement = &ann
	return ann, nil
}

// ClearAnnouncement removes the active announcement, owner-only.
func (r *Registry) ClearAnnouncement(sessionID string, ownerConnID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.checkOwner(sessionID, ownerConnID)
	if err != nil {
		return err
	}
	sess.lastActivity = r.now()
	sess.announcement = nil
	return nil
}

// CheckOwner verifies that ownerConnID owns the session.
func (r *Registry) CheckOwner(sessionID string, ownerConnID uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := r.checkOwner(sessionID, ownerConnID)
	return err
}

// Get returns a snapshot of the session.
func (r *Registry) Get(sessionID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return sess.snapshot(), true
}

// List returns snapshots of all live sessions.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.snapshot())
	}
	return out
}

// Remove deletes the session, returning its final snapshot.
// Idempotent: a second call for the same id reports ok=false, which lets
// every end trigger (explicit end, owner disconnect, sweep) share one path
// without double-running cleanup.
func (r *Registry) Remove(sessionID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	delete(r.sessions, sessionID)
	metrics.LiveSessions.Set(float64(len(r.sessions)))
	return sess.snapshot(), true
}

// SessionsOwnedBy returns ids of sessions owned by the connection.
// Used on connection close to trigger end-of-session cleanup.
func (r *Registry) SessionsOwnedBy(ownerConnID uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, sess := range r.sessions {
		if sess.ownerConnID == ownerConnID {
			out = append(out, id)
		}
	}
	return out
}

// SweepCandidates returns sessions idle beyond idleThreshold or older than
// maxAge, for the periodic sweep.
func (r *Registry) SweepCandidates(idleThreshold, maxAge time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var out []string
	for id, sess := range r.sessions {
		if now.Sub(sess.lastActivity) > idleThreshold || now.Sub(sess.startedAt) > maxAge {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
