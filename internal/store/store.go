// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package store is the persistence adapter consumed by the live coordinator.
//
// The relay treats durability as best-effort: every write here is invoked
// fire-and-forget through AsyncWriter with bounded retries, and the live
// path never blocks on storage. Two implementations ship: Postgres (pgx)
// and an in-memory store for tests and development.
package store

import (
	"context"
	"time"

	"github.com/mixcast/mixcast/internal/protocol"
)

// SessionRecord is the durable shape of a live session.
type SessionRecord struct {
	SessionID string
	DJName    string
	DJUserID  string
	StartedAt time.Time
}

// LikeRecord is one accepted track like.
type LikeRecord struct {
	SessionID string
	ClientID  string
	Track     protocol.Track
	LikedAt   time.Time
}

// TempoTally is the aggregate tempo feedback for one track.
type TempoTally struct {
	Faster  int
	Slower  int
	Perfect int
}

// PollRecord is the durable shape of a poll at creation time.
type PollRecord struct {
	SessionID string
	Question  string
	Options   []string
	CreatedAt time.Time
	EndsAt    *time.Time
}

// Store is the narrow persistence interface the coordinator calls.
// Every method is individually fallible without aborting the live flow.
type Store interface {
	// PersistSession upserts the session row.
	PersistSession(ctx context.Context, rec SessionRecord) error

	// SessionPersisted reports whether the session row exists yet; the poll
	// engine waits on this (bounded) before creating a poll row.
	SessionPersisted(ctx context.Context, sessionID string) (bool, error)

	// PersistTrack appends a track-play row for the session.
	PersistTrack(ctx context.Context, sessionID string, track protocol.Track) error

	// PersistLike appends a like row.
	PersistLike(ctx context.Context, rec LikeRecord) error

	// PersistTempoVotes stores the final tempo tally for a finished track.
	PersistTempoVotes(ctx context.Context, sessionID, trackKey string, tally TempoTally) error

	// CreatePoll inserts the poll row and returns the store-assigned id.
	CreatePoll(ctx context.Context, rec PollRecord) (int64, error)

	// PersistPollVote appends one client's vote.
	PersistPollVote(ctx context.Context, pollID int64, clientID string, optionIndex int) error

	// ClosePoll records the final counts and winner.
	ClosePoll(ctx context.Context, pollID int64, votes []int, winnerIndex int, cancelled bool) error

	// EndSession marks the session row ended.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error

	// Close releases resources.
	Close(ctx context.Context) error
}
