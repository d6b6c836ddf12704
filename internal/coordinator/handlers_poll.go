// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/metrics"
	"github.com/mixcast/mixcast/internal/poll"
	"github.com/mixcast/mixcast/internal/protocol"
	"github.com/mixcast/mixcast/internal/store"
)

// handleStartPoll opens a poll, owner-only, at most one per session.
//
// Poll ids are store-assigned, so the session row must exist first; the
// bounded wait below rides out the async session write. The wait stalls
// only this DJ connection's read pump.
func (co *Coordinator) handleStartPoll(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.StartPollPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	if err := co.registry.CheckOwner(p.SessionID, c.ID()); err != nil {
		co.nackOwnership(c, env.MessageID, err)
		return
	}
	if _, active := co.polls.ActivePollID(p.SessionID); active {
		co.nack(c, env.MessageID, "a poll is already active for this session")
		return
	}

	duration := time.Duration(p.DurationSec) * time.Second
	if duration > 0 && duration < co.cfg.Poll.MinDuration {
		duration = co.cfg.Poll.MinDuration
	}

	if !co.waitSessionPersisted(p.SessionID) {
		co.nack(c, env.MessageID, "session not yet persisted, retry shortly")
		return
	}

	rec := store.PollRecord{
		SessionID: p.SessionID,
		Question:  p.Question,
		Options:   p.Options,
		CreatedAt: co.now(),
	}
	if duration > 0 {
		endsAt := rec.CreatedAt.Add(duration)
		rec.EndsAt = &endsAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), co.cfg.Store.Timeout)
	pollID, err := co.writer.Store().CreatePoll(ctx, rec)
	cancel()
	if err != nil {
		logging.Err(err).Str("session_id", p.SessionID).Msg("failed to create poll row")
		co.nack(c, env.MessageID, "storage unavailable, poll not created")
		return
	}

	snap, err := co.polls.Start(p.SessionID, pollID, p.Question, p.Options, duration)
	if err != nil {
		// Lost a race with a concurrent start; close the orphaned row.
		co.writer.Go("poll_close", func(ctx context.Context) error {
			return co.writer.Store().ClosePoll(ctx, pollID, make([]int, len(p.Options)), 0, true)
		})
		co.nack(c, env.MessageID, "a poll is already active for this session")
		return
	}

	c.Send(protocol.Ack(env.MessageID))
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypePollStarted,
		Data: protocol.PollStartedData{
			SessionID: snap.SessionID,
			PollID:    snap.ID,
			Question:  snap.Question,
			Options:   snap.Options,
			EndsAt:    snap.EndsAt,
		},
	})

	logging.Info().
		Int64("poll_id", snap.ID).
		Str("session_id", snap.SessionID).
		Int("options", len(snap.Options)).
		Dur("duration", duration).
		Msg("poll started")
}

// waitSessionPersisted polls the store until the session row lands or the
// configured attempts run out.
func (co *Coordinator) waitSessionPersisted(sessionID string) bool {
	for attempt := 0; attempt < co.cfg.Poll.PersistWaitAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(co.cfg.Poll.PersistWaitDelay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), co.cfg.Store.Timeout)
		ok, err := co.writer.Store().SessionPersisted(ctx, sessionID)
		cancel()
		if err == nil && ok {
			return true
		}
	}
	return false
}

// handleClosePoll ends (or cancels) a poll, owner-only. The terminal
// POLL_ENDED broadcast goes out exactly once; closing an already-closed
// poll NACKs rather than re-announcing a result.
func (co *Coordinator) handleClosePoll(c *hub.Conn, env *protocol.Envelope, cancelled bool) {
	p, err := protocol.DecodePayload[protocol.PollRefPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	if err := co.registry.CheckOwner(p.SessionID, c.ID()); err != nil {
		co.nackOwnership(c, env.MessageID, err)
		return
	}

	result, err := co.polls.End(p.SessionID, p.PollID, cancelled)
	if errors.Is(err, poll.ErrWrongSession) {
		co.nack(c, env.MessageID, "unauthorized")
		return
	}
	if err != nil {
		co.nack(c, env.MessageID, "poll not found or already ended")
		return
	}

	c.Send(protocol.Ack(env.MessageID))
	co.broadcastPollEnded(result)
	co.persistPollClose(result)
}

// handleVoteOnPoll casts a dancer's vote. One vote per client per poll:
// an exact duplicate re-confirms the standing vote, a different option is
// rejected with the standing choice echoed so retried frames never corrupt
// client UI state.
func (co *Coordinator) handleVoteOnPoll(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.VoteOnPollPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	clientID := c.ClientID()
	if clientID == "" {
		co.nack(c, env.MessageID, "clientId required to vote")
		return
	}

	snap, applied, err := co.polls.Vote(p.PollID, clientID, p.OptionIndex)
	switch {
	case errors.Is(err, poll.ErrNotFound):
		c.Send(protocol.Ack(env.MessageID))
		c.Send(protocol.Message{
			Type: protocol.TypeVoteRejected,
			Data: protocol.VoteRejectedData{PollID: p.PollID, Reason: "poll not found or already ended"},
		})
		return

	case errors.Is(err, poll.ErrAlreadyVoted):
		c.Send(protocol.Ack(env.MessageID))
		if applied == p.OptionIndex {
			// Redelivery of the vote that already counted.
			c.Send(protocol.Message{
				Type: protocol.TypeVoteConfirmed,
				Data: protocol.VoteConfirmedData{PollID: p.PollID, OptionIndex: applied},
			})
			return
		}
		c.Send(protocol.Message{
			Type: protocol.TypeVoteRejected,
			Data: protocol.VoteRejectedData{
				PollID:      p.PollID,
				Reason:      "already voted",
				HasVoted:    true,
				VotedOption: applied,
			},
		})
		return

	case errors.Is(err, poll.ErrOptionOutOfRange):
		c.Send(protocol.Ack(env.MessageID))
		c.Send(protocol.Message{
			Type: protocol.TypeVoteRejected,
			Data: protocol.VoteRejectedData{PollID: p.PollID, Reason: "option index out of range"},
		})
		return

	case err != nil:
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	metrics.PollVotesTotal.Inc()
	c.Send(protocol.Ack(env.MessageID))
	c.Send(protocol.Message{
		Type: protocol.TypeVoteConfirmed,
		Data: protocol.VoteConfirmedData{PollID: p.PollID, OptionIndex: applied},
	})
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypePollUpdate,
		Data: protocol.PollUpdateData{
			SessionID: snap.SessionID,
			PollID:    snap.ID,
			Votes:     snap.Votes,
			Total:     snap.Total,
		},
	})

	co.writer.Go("poll_vote", func(ctx context.Context) error {
		return co.writer.Store().PersistPollVote(ctx, p.PollID, clientID, p.OptionIndex)
	})
}
