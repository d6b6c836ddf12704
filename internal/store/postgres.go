// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mixcast/mixcast/internal/protocol"
)

// PostgresStore persists relay state to Postgres via a pgx pool.
// Schema lives with the platform's migration tooling; the relay only writes.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore opens a pgx pool against the provided DSN.
func NewPostgresStore(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{pool: pool, timeout: timeout}, nil
}

// withTimeout derives a bounded context for one statement.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// PersistSession upserts the session row.
func (s *PostgresStore) PersistSession(ctx context.Context, rec SessionRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO live_sessions (session_id, dj_name, dj_user_id, started_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id) DO UPDATE SET dj_name = EXCLUDED.dj_name
`, rec.SessionID, rec.DJName, rec.DJUserID, rec.StartedAt.UTC())
	return err
}

// SessionPersisted reports whether the session row exists.
func (s *PostgresStore) SessionPersisted(ctx context.Context, sessionID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM live_sessions WHERE session_id = $1)
`, sessionID).Scan(&exists)
	return exists, err
}

// PersistTrack appends a track-play row.
func (s *PostgresStore) PersistTrack(ctx context.Context, sessionID string, track protocol.Track) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	fingerprint, err := json.Marshal(track.Fingerprint)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO session_tracks (session_id, artist, title, bpm, musical_key, fingerprint, played_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
`, sessionID, track.Artist, track.Title, track.BPM, track.Key, fingerprint)
	return err
}

// PersistLike appends a like row. The uniqueness constraint backs up the
// in-memory ledger; a conflict means the ledger was rebuilt mid-session and
// is not an error.
func (s *PostgresStore) PersistLike(ctx context.Context, rec LikeRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO track_likes (session_id, client_id, track_key, artist, title, liked_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id, client_id, track_key) DO NOTHING
`, rec.SessionID, rec.ClientID, rec.Track.TrackKey(), rec.Track.Artist, rec.Track.Title, rec.LikedAt.UTC())
	return err
}

// PersistTempoVotes stores a track's final tempo tally.
func (s *PostgresStore) PersistTempoVotes(ctx context.Context, sessionID, trackKey string, tally TempoTally) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO tempo_tallies (session_id, track_key, faster, slower, perfect, tallied_at)
VALUES ($1, $2, $3, $4, $5, now())
`, sessionID, trackKey, tally.Faster, tally.Slower, tally.Perfect)
	return err
}

// CreatePoll inserts the poll row and returns the assigned id.
func (s *PostgresStore) CreatePoll(ctx context.Context, rec PollRecord) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	options, err := json.Marshal(rec.Options)
	if err != nil {
		return 0, fmt.Errorf("marshal options: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
INSERT INTO session_polls (session_id, question, options, created_at, ends_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, rec.SessionID, rec.Question, options, rec.CreatedAt.UTC(), rec.EndsAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// PersistPollVote appends one client's vote.
func (s *PostgresStore) PersistPollVote(ctx context.Context, pollID int64, clientID string, optionIndex int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO poll_votes (poll_id, client_id, option_index, voted_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (poll_id, client_id) DO NOTHING
`, pollID, clientID, optionIndex)
	return err
}

// ClosePoll records the final counts and winner.
func (s *PostgresStore) ClosePoll(ctx context.Context, pollID int64, votes []int, winnerIndex int, cancelled bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	counts, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("marshal vote counts: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE session_polls
SET closed_at = now(), final_votes = $2, winner_index = $3, cancelled = $4
WHERE id = $1
`, pollID, counts, winnerIndex, cancelled)
	return err
}

// EndSession marks the session row ended.
func (s *PostgresStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE live_sessions SET ended_at = $2 WHERE session_id = $1 AND ended_at IS NULL
`, sessionID, endedAt.UTC())
	return err
}

// Close releases the pool, bounded by ctx.
func (s *PostgresStore) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
