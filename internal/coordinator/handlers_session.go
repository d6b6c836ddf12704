// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mixcast/mixcast/internal/auth"
	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/protocol"
	"github.com/mixcast/mixcast/internal/session"
	"github.com/mixcast/mixcast/internal/store"
)

// handleRegisterSession starts a live session or idempotently re-confirms
// one owned by this connection. Token validation failure is not a hard
// error: the session proceeds anonymous and unverified.
func (co *Coordinator) handleRegisterSession(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.RegisterSessionPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	djName := p.DJName
	djUserID := ""
	verified := false
	if identity, verr := co.tokens.Validate(p.AuthToken); verr == nil {
		djUserID = identity.UserID
		verified = true
		if identity.DisplayName != "" {
			djName = identity.DisplayName
		}
	} else if p.AuthToken != "" {
		logging.Debug().Err(verr).Str("session_id", sessionID).Msg("token rejected, registering anonymous")
	}

	snap, resumed, err := co.registry.Register(sessionID, djName, djUserID, verified, c.ID())
	if err != nil {
		if errors.Is(err, session.ErrOwnedElsewhere) {
			co.nack(c, env.MessageID, "session id already registered by another connection")
			return
		}
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	c.SetIdentity(&auth.DJIdentity{
		UserID:      snap.DJUserID,
		DisplayName: snap.DJName,
		Verified:    snap.Verified,
	})
	c.Send(protocol.Ack(env.MessageID))
	c.Send(protocol.Message{
		Type: protocol.TypeSessionRegistered,
		Data: protocol.SessionRegisteredData{
			SessionID: snap.SessionID,
			DJName:    snap.DJName,
			Verified:  snap.Verified,
			Resumed:   resumed,
		},
	})

	if resumed {
		return
	}

	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeSessionStarted,
		Data: protocol.SessionStartedData{
			SessionID: snap.SessionID,
			DJName:    snap.DJName,
			StartedAt: snap.StartedAt,
		},
	})

	rec := store.SessionRecord{
		SessionID: snap.SessionID,
		DJName:    snap.DJName,
		DJUserID:  snap.DJUserID,
		StartedAt: snap.StartedAt,
	}
	co.writer.Go("session", func(ctx context.Context) error {
		return co.writer.Store().PersistSession(ctx, rec)
	})

	logging.Info().
		Str("session_id", snap.SessionID).
		Str("dj_name", snap.DJName).
		Bool("verified", snap.Verified).
		Msg("session registered")
}

// handleBroadcastTrack installs the now-playing track, owner-only.
// NOW_PLAYING goes out even when the track is unchanged so re-announcements
// refresh clients; persistence and the tempo reset only fire on a real
// change (fingerprint churn does not count as one).
func (co *Coordinator) handleBroadcastTrack(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.BroadcastTrackPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	snap, changed, prevKey, err := co.registry.SetTrack(p.SessionID, c.ID(), p.Track)
	if err != nil {
		co.nackOwnership(c, env.MessageID, err)
		return
	}
	c.Send(protocol.Ack(env.MessageID))

	if changed && prevKey != "" {
		if tally := co.tempo.Reset(p.SessionID); tally.Total > 0 {
			co.persistTempoTally(p.SessionID, prevKey, tally)
		}
		co.hub.Broadcast(protocol.Message{
			Type: protocol.TypeTempoReset,
			Data: protocol.TempoResetData{SessionID: p.SessionID},
		})
	}

	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeNowPlaying,
		Data: protocol.NowPlayingData{SessionID: snap.SessionID, Track: *snap.CurrentTrack},
	})

	if !changed {
		return
	}

	track := p.Track
	co.writer.Go("track", func(ctx context.Context) error {
		return co.writer.Store().PersistTrack(ctx, p.SessionID, track)
	})
}

// handleTrackStopped clears the now-playing track, owner-only.
// Stopping when nothing plays is an idempotent ACK.
func (co *Coordinator) handleTrackStopped(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SessionRefPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	key, err := co.registry.ClearTrack(p.SessionID, c.ID())
	if err != nil {
		co.nackOwnership(c, env.MessageID, err)
		return
	}
	c.Send(protocol.Ack(env.MessageID))

	if key == "" {
		return
	}

	if tally := co.tempo.Reset(p.SessionID); tally.Total > 0 {
		co.persistTempoTally(p.SessionID, key, tally)
	}
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeTempoReset,
		Data: protocol.TempoResetData{SessionID: p.SessionID},
	})
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeTrackStoppedEvent,
		Data: protocol.TrackStoppedData{SessionID: p.SessionID},
	})
}

// handleEndSession terminates the session, owner-only.
// Ending a session that no longer exists ACKs: the retry of a delivered end
// must not look like a failure.
func (co *Coordinator) handleEndSession(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SessionRefPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	if err := co.registry.CheckOwner(p.SessionID, c.ID()); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.Send(protocol.Ack(env.MessageID))
			return
		}
		co.nackOwnership(c, env.MessageID, err)
		return
	}

	c.Send(protocol.Ack(env.MessageID))
	co.endSession(p.SessionID, ReasonEndedByDJ)
}

// handleSubscribe joins a dancer connection to a session and replays the
// session's current state: now playing, active announcement, poll state
// personalized with the client's standing vote, and the crowd size.
func (co *Coordinator) handleSubscribe(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SessionRefPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	clientID := c.ClientID()
	if clientID == "" {
		co.nack(c, env.MessageID, "clientId required to subscribe")
		return
	}

	snap, ok := co.registry.Get(p.SessionID)
	if !ok {
		co.nack(c, env.MessageID, "session not found")
		return
	}

	co.mu.Lock()
	if co.subs[c.ID()] == nil {
		co.subs[c.ID()] = make(map[string]int)
	}
	co.subs[c.ID()][p.SessionID]++
	co.mu.Unlock()

	transitioned := co.presence.Subscribe(p.SessionID, clientID)
	c.Send(protocol.Ack(env.MessageID))

	// Late-join replay goes through the bulk path: a backed-up socket skips
	// it rather than falling further behind.
	if snap.CurrentTrack != nil {
		c.SendBulk(protocol.Message{
			Type: protocol.TypeNowPlaying,
			Data: protocol.NowPlayingData{SessionID: snap.SessionID, Track: *snap.CurrentTrack},
		})
	}
	if ann := snap.Announcement; ann != nil && !ann.Expired(co.now()) {
		c.SendBulk(protocol.Message{
			Type: protocol.TypeAnnouncementReceived,
			Data: protocol.AnnouncementData{
				SessionID: snap.SessionID,
				Message:   ann.Message,
				Timestamp: ann.Timestamp,
				ExpiresAt: ann.ExpiresAt,
			},
		})
	}
	if pollSnap, votedOption, hasVoted, active := co.polls.StateFor(p.SessionID, clientID); active {
		c.SendBulk(protocol.Message{
			Type: protocol.TypePollState,
			Data: protocol.PollStateData{
				SessionID:   pollSnap.SessionID,
				PollID:      pollSnap.ID,
				Question:    pollSnap.Question,
				Options:     pollSnap.Options,
				Votes:       pollSnap.Votes,
				EndsAt:      pollSnap.EndsAt,
				HasVoted:    hasVoted,
				VotedOption: votedOption,
			},
		})
	}

	count := co.presence.Count(p.SessionID)
	c.SendBulk(protocol.Message{
		Type: protocol.TypeListenerCount,
		Data: protocol.ListenerCountData{SessionID: p.SessionID, Count: count},
	})

	// Only a real presence transition broadcasts inline; extra tabs settle
	// silently and the heartbeat covers the rest.
	if transitioned {
		co.presence.NoteBroadcast(p.SessionID, count)
		co.hub.Broadcast(protocol.Message{
			Type: protocol.TypeListenerCount,
			Data: protocol.ListenerCountData{SessionID: p.SessionID, Count: count},
		})
	}
}

// handleGetSessions replies with the live session catalog.
func (co *Coordinator) handleGetSessions(c *hub.Conn, env *protocol.Envelope) {
	snaps := co.registry.List()
	sessions := make([]protocol.SessionSummary, 0, len(snaps))
	for _, snap := range snaps {
		sessions = append(sessions, protocol.SessionSummary{
			SessionID:     snap.SessionID,
			DJName:        snap.DJName,
			StartedAt:     snap.StartedAt,
			CurrentTrack:  snap.CurrentTrack,
			ListenerCount: co.presence.Count(snap.SessionID),
		})
	}

	c.Send(protocol.Ack(env.MessageID))
	c.SendBulk(protocol.Message{
		Type: protocol.TypeSessionsList,
		Data: protocol.SessionsListData{Sessions: sessions},
	})
}

// nackOwnership maps registry ownership errors onto wire reasons.
func (co *Coordinator) nackOwnership(c *hub.Conn, messageID string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		co.nack(c, messageID, "session not found")
	case errors.Is(err, session.ErrNotOwner):
		co.nack(c, messageID, "not the session owner")
	default:
		co.nackInvalid(c, messageID, err)
	}
}
