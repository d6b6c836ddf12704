// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package protocol

import "time"

// Outbound data payloads. Broadcast events always carry SessionID so dancer
// clients self-filter on the shared topic.

// AckData acknowledges one inbound messageId.
type AckData struct {
	MessageID string `json:"messageId"`
}

// NackData rejects one inbound messageId with a human-readable reason.
type NackData struct {
	MessageID string `json:"messageId"`
	Reason    string `json:"reason"`
}

// Ack builds a terminal ACK message.
func Ack(messageID string) Message {
	return Message{Type: TypeAck, Data: AckData{MessageID: messageID}}
}

// Nack builds a terminal NACK message.
func Nack(messageID, reason string) Message {
	return Message{Type: TypeNack, Data: NackData{MessageID: messageID, Reason: reason}}
}

// SessionRegisteredData confirms registration to the DJ connection.
type SessionRegisteredData struct {
	SessionID string `json:"sessionId"`
	DJName    string `json:"djName"`
	Verified  bool   `json:"verified"`
	Resumed   bool   `json:"resumed"`
}

// SessionStartedData announces a new live session.
type SessionStartedData struct {
	SessionID string    `json:"sessionId"`
	DJName    string    `json:"djName"`
	StartedAt time.Time `json:"startedAt"`
}

// NowPlayingData announces the current track.
type NowPlayingData struct {
	SessionID string `json:"sessionId"`
	Track     Track  `json:"track"`
}

// TrackStoppedData announces playback stopping without a replacement track.
type TrackStoppedData struct {
	SessionID string `json:"sessionId"`
}

// SessionEndedData announces session termination to dancers.
type SessionEndedData struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// ListenerCountData carries the derived crowd size.
type ListenerCountData struct {
	SessionID string `json:"sessionId"`
	Count     int    `json:"count"`
}

// LikeReceivedData announces an accepted like.
type LikeReceivedData struct {
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId"`
	Track     Track  `json:"track"`
}

// LikeAlreadySentData tells the sender its like was a duplicate, carrying
// the authoritative track key so the client UI can reconcile.
type LikeAlreadySentData struct {
	SessionID string `json:"sessionId"`
	TrackKey  string `json:"trackKey"`
}

// TempoFeedbackData carries the current tempo tally.
type TempoFeedbackData struct {
	SessionID string `json:"sessionId"`
	Faster    int    `json:"faster"`
	Slower    int    `json:"slower"`
	Perfect   int    `json:"perfect"`
	Total     int    `json:"total"`
}

// TempoResetData signals that tempo state restarted (track change).
type TempoResetData struct {
	SessionID string `json:"sessionId"`
}

// PollStartedData announces a newly active poll.
type PollStartedData struct {
	SessionID string     `json:"sessionId"`
	PollID    int64      `json:"pollId"`
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	EndsAt    *time.Time `json:"endsAt,omitempty"`
}

// PollUpdateData carries aggregate counts after a vote.
type PollUpdateData struct {
	SessionID string `json:"sessionId"`
	PollID    int64  `json:"pollId"`
	Votes     []int  `json:"votes"`
	Total     int    `json:"total"`
}

// PollStateData is the personalized late-join poll snapshot: aggregate
// counts plus whether this specific client already voted, and for what.
type PollStateData struct {
	SessionID   string     `json:"sessionId"`
	PollID      int64      `json:"pollId"`
	Question    string     `json:"question"`
	Options     []string   `json:"options"`
	Votes       []int      `json:"votes"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	HasVoted    bool       `json:"hasVoted"`
	VotedOption int        `json:"votedOption"`
}

// PollEndedData carries the final result, broadcast exactly once.
type PollEndedData struct {
	SessionID   string   `json:"sessionId"`
	PollID      int64    `json:"pollId"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Votes       []int    `json:"votes"`
	WinnerIndex int      `json:"winnerIndex"`
	Cancelled   bool     `json:"cancelled"`
}

// VoteConfirmedData confirms the sender's accepted vote.
type VoteConfirmedData struct {
	PollID      int64 `json:"pollId"`
	OptionIndex int   `json:"optionIndex"`
}

// VoteRejectedData rejects a vote, echoing the client's standing choice (if
// any) so a retried or duplicate vote never loses UI state.
type VoteRejectedData struct {
	PollID      int64  `json:"pollId"`
	Reason      string `json:"reason"`
	HasVoted    bool   `json:"hasVoted"`
	VotedOption int    `json:"votedOption"`
}

// AnnouncementData carries an active DJ announcement.
type AnnouncementData struct {
	SessionID string     `json:"sessionId"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AnnouncementCancelledData clears the active announcement.
type AnnouncementCancelledData struct {
	SessionID string `json:"sessionId"`
}

// SessionSummary is one entry in SESSIONS_LIST.
type SessionSummary struct {
	SessionID     string    `json:"sessionId"`
	DJName        string    `json:"djName"`
	StartedAt     time.Time `json:"startedAt"`
	CurrentTrack  *Track    `json:"currentTrack,omitempty"`
	ListenerCount int       `json:"listenerCount"`
}

// SessionsListData is the bulk catch-up list sent on request or subscribe.
type SessionsListData struct {
	Sessions []SessionSummary `json:"sessions"`
}

// ServerShutdownData warns clients the relay is going away.
type ServerShutdownData struct {
	Reason string `json:"reason"`
}
