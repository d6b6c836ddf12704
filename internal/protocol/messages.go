// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package protocol defines the JSON wire schema spoken over the WebSocket:
// the inbound envelope, per-type payload shapes with validation tags, and
// outbound event messages. Frames are plain JSON, at most MaxFrameBytes.
package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mixcast/mixcast/internal/validation"
)

// MaxFrameBytes is the default inbound frame ceiling. Oversized frames close
// the connection with a policy violation; this is a protocol constant, the
// effective value is configurable.
const MaxFrameBytes = 10 * 1024

// Inbound message types.
const (
	TypeRegisterSession    = "REGISTER_SESSION"
	TypeBroadcastTrack     = "BROADCAST_TRACK"
	TypeTrackStopped       = "TRACK_STOPPED"
	TypeEndSession         = "END_SESSION"
	TypeSendLike           = "SEND_LIKE"
	TypeSendTempoRequest   = "SEND_TEMPO_REQUEST"
	TypeSubscribe          = "SUBSCRIBE"
	TypeStartPoll          = "START_POLL"
	TypeEndPoll            = "END_POLL"
	TypeCancelPoll         = "CANCEL_POLL"
	TypeVoteOnPoll         = "VOTE_ON_POLL"
	TypeSendAnnouncement   = "SEND_ANNOUNCEMENT"
	TypeCancelAnnouncement = "CANCEL_ANNOUNCEMENT"
	TypePing               = "PING"
	TypeGetSessions        = "GET_SESSIONS"
)

// Outbound message types.
const (
	TypeSessionRegistered     = "SESSION_REGISTERED"
	TypeSessionStarted        = "SESSION_STARTED"
	TypeNowPlaying            = "NOW_PLAYING"
	TypeTrackStoppedEvent     = "TRACK_STOPPED"
	TypeSessionEnded          = "SESSION_ENDED"
	TypeSessionExpired        = "SESSION_EXPIRED"
	TypeListenerCount         = "LISTENER_COUNT"
	TypeLikeReceived          = "LIKE_RECEIVED"
	TypeLikeAlreadySent       = "LIKE_ALREADY_SENT"
	TypeTempoFeedback         = "TEMPO_FEEDBACK"
	TypeTempoReset            = "TEMPO_RESET"
	TypePollStarted           = "POLL_STARTED"
	TypePollUpdate            = "POLL_UPDATE"
	TypePollState             = "POLL_STATE"
	TypePollEnded             = "POLL_ENDED"
	TypeVoteConfirmed         = "VOTE_CONFIRMED"
	TypeVoteRejected          = "VOTE_REJECTED"
	TypeAnnouncementReceived  = "ANNOUNCEMENT_RECEIVED"
	TypeAnnouncementCancelled = "ANNOUNCEMENT_CANCELLED"
	TypeSessionsList          = "SESSIONS_LIST"
	TypeAck                   = "ACK"
	TypeNack                  = "NACK"
	TypePong                  = "PONG"
	TypeServerShutdown        = "SERVER_SHUTDOWN"
)

// Envelope is the inbound frame: a type tag, optional reliability metadata,
// and a type-specific payload decoded lazily.
type Envelope struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Nonce     string          `json:"nonce,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParseEnvelope decodes a raw frame into an Envelope.
// A missing or empty type tag is an error; unknown types are the caller's
// concern (silently dropped at the dispatch boundary).
func ParseEnvelope(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return env, nil
}

// DecodePayload unmarshals and validates the envelope payload as T.
func DecodePayload[T any](env *Envelope) (*T, error) {
	payload := new(T)
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
	}
	if err := validation.ValidateStruct(payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return payload, nil
}

// Message is an outbound frame: a type tag plus a type-specific data object.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Marshal converts an outbound message to JSON.
func Marshal(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
