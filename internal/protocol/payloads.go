// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package protocol

// Track describes the currently playing track as reported by the desktop app.
type Track struct {
	Artist string  `json:"artist" validate:"required,max=256"`
	Title  string  `json:"title" validate:"required,max=256"`
	BPM    float64 `json:"bpm,omitempty" validate:"gte=0,lte=400"`
	Key    string  `json:"key,omitempty" validate:"max=8"`

	// Fingerprint carries analyzer metrics (energy, danceability, ...) the
	// desktop app attaches; opaque to the relay.
	Fingerprint map[string]float64 `json:"fingerprint,omitempty"`
}

// TrackKey returns the dedup key for like tracking, artist:title.
func (t Track) TrackKey() string {
	return t.Artist + ":" + t.Title
}

// Equal reports whether two tracks are the same logical track.
// Fingerprint metrics are ignored; re-analysis must not look like a change.
func (t Track) Equal(other Track) bool {
	return t.Artist == other.Artist && t.Title == other.Title
}

// RegisterSessionPayload starts or re-confirms a live session.
type RegisterSessionPayload struct {
	SessionID string `json:"sessionId,omitempty" validate:"max=128"`
	DJName    string `json:"djName" validate:"required,max=128"`
	AuthToken string `json:"authToken,omitempty"`
}

// BroadcastTrackPayload installs the now-playing track.
type BroadcastTrackPayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Track     Track  `json:"track" validate:"required"`
}

// SessionRefPayload addresses an existing session (TRACK_STOPPED,
// END_SESSION, SUBSCRIBE, CANCEL_ANNOUNCEMENT).
type SessionRefPayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

// SendLikePayload likes a track within a session.
type SendLikePayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Track     Track  `json:"track" validate:"required"`
}

// SendTempoPayload submits or clears a tempo preference.
type SendTempoPayload struct {
	SessionID  string `json:"sessionId" validate:"required,max=128"`
	Preference string `json:"preference" validate:"required,oneof=faster slower perfect clear"`
}

// StartPollPayload opens a poll for a session.
type StartPollPayload struct {
	SessionID   string   `json:"sessionId" validate:"required,max=128"`
	Question    string   `json:"question" validate:"required,max=512"`
	Options     []string `json:"options" validate:"required,min=2,max=12,dive,required,max=256"`
	DurationSec int      `json:"durationSec,omitempty" validate:"gte=0,lte=3600"`
}

// PollRefPayload addresses an existing poll (END_POLL, CANCEL_POLL).
type PollRefPayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	PollID    int64  `json:"pollId" validate:"required"`
}

// VoteOnPollPayload casts a vote.
type VoteOnPollPayload struct {
	PollID      int64 `json:"pollId" validate:"required"`
	OptionIndex int   `json:"optionIndex" validate:"gte=0"`
}

// SendAnnouncementPayload publishes a DJ announcement to the crowd.
type SendAnnouncementPayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Message   string `json:"message" validate:"required,max=1024"`
	TTLSec    int    `json:"ttlSec,omitempty" validate:"gte=0,lte=86400"`
}
