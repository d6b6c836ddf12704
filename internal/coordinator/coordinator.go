// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package coordinator is the dispatch boundary between raw WebSocket frames
// and the domain: envelope parsing, clientId binding, nonce deduplication,
// per-type handlers, and the single idempotent end-of-session path shared by
// explicit END_SESSION, owner disconnect, and the lifecycle sweep.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/mixcast/mixcast/internal/auth"
	"github.com/mixcast/mixcast/internal/config"
	"github.com/mixcast/mixcast/internal/engagement"
	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/metrics"
	"github.com/mixcast/mixcast/internal/poll"
	"github.com/mixcast/mixcast/internal/presence"
	"github.com/mixcast/mixcast/internal/protocol"
	"github.com/mixcast/mixcast/internal/session"
	"github.com/mixcast/mixcast/internal/store"
)

// End reasons carried in SESSION_ENDED broadcasts.
const (
	ReasonEndedByDJ      = "ended_by_dj"
	ReasonDJDisconnected = "dj_disconnected"
	ReasonExpired        = "expired"
)

// mutatingTypes are the inbound types whose effects must not be reapplied
// on an at-least-once retry. A cached nonce short-circuits to a bare ACK.
var mutatingTypes = map[string]bool{
	protocol.TypeRegisterSession:    true,
	protocol.TypeBroadcastTrack:     true,
	protocol.TypeTrackStopped:       true,
	protocol.TypeEndSession:         true,
	protocol.TypeSendLike:           true,
	protocol.TypeSendTempoRequest:   true,
	protocol.TypeStartPoll:          true,
	protocol.TypeEndPoll:            true,
	protocol.TypeCancelPoll:         true,
	protocol.TypeVoteOnPoll:         true,
	protocol.TypeSendAnnouncement:   true,
	protocol.TypeCancelAnnouncement: true,
}

// Coordinator wires the domain components behind the hub's Handler interface.
type Coordinator struct {
	cfg        *config.Config
	hub        *hub.Hub
	registry   *session.Registry
	presence   *presence.Tracker
	likes      *engagement.LikeLedger
	tempo      *engagement.TempoBoard
	nonces     *engagement.NonceCache
	polls      *poll.Engine
	writer     *store.AsyncWriter
	likeWriter *store.AsyncWriter
	tokens     auth.TokenValidator

	mu    sync.RWMutex
	conns map[uint64]*hub.Conn
	// subs counts SUBSCRIBE frames per (connection, session). Retried
	// subscribes each claim presence, so a disconnect must release exactly
	// that many claims or the client stays counted forever.
	subs map[uint64]map[string]int

	now func() time.Time
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Config     *config.Config
	Hub        *hub.Hub
	Registry   *session.Registry
	Presence   *presence.Tracker
	Likes      *engagement.LikeLedger
	Tempo      *engagement.TempoBoard
	Nonces     *engagement.NonceCache
	Polls      *poll.Engine
	Writer     *store.AsyncWriter
	LikeWriter *store.AsyncWriter
	Tokens     auth.TokenValidator
}

// New builds the coordinator and installs the poll auto-close handler.
func New(d Deps) *Coordinator {
	co := &Coordinator{
		cfg:        d.Config,
		hub:        d.Hub,
		registry:   d.Registry,
		presence:   d.Presence,
		likes:      d.Likes,
		tempo:      d.Tempo,
		nonces:     d.Nonces,
		polls:      d.Polls,
		writer:     d.Writer,
		likeWriter: d.LikeWriter,
		tokens:     d.Tokens,
		conns:      make(map[uint64]*hub.Conn),
		subs:       make(map[uint64]map[string]int),
		now:        time.Now,
	}
	co.polls.SetExpireHandler(co.onPollExpired)
	return co
}

// HandleMessage is the per-frame entry point, called from the read pump.
func (co *Coordinator) HandleMessage(c *hub.Conn, data []byte) {
	co.trackConn(c)

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		// No messageId to NACK against; the sender's retry loop covers it.
		logging.Debug().Err(err).Uint64("conn_id", c.ID()).Msg("dropping malformed frame")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("message_type", env.Type).
				Uint64("conn_id", c.ID()).
				Msg("recovered panic in message handler")
			co.nack(c, env.MessageID, "internal error")
		}
	}()

	if !c.Allow() {
		co.nack(c, env.MessageID, "rate limited")
		return
	}

	// The first clientId seen on a connection binds it; later frames claiming
	// a different id are treated as carrying the bound one.
	if env.ClientID != "" {
		bound, matched := c.BindClientID(env.ClientID)
		if !matched {
			logging.Warn().
				Uint64("conn_id", c.ID()).
				Str("bound_client_id", bound).
				Str("claimed_client_id", env.ClientID).
				Msg("ignoring clientId change on established connection")
		}
	}

	if mutatingTypes[env.Type] && co.nonces.Observe(env.Nonce) {
		// Retry of an already-applied message: acknowledge, never reapply.
		c.Send(protocol.Ack(env.MessageID))
		return
	}

	switch env.Type {
	case protocol.TypeRegisterSession:
		co.handleRegisterSession(c, env)
	case protocol.TypeBroadcastTrack:
		co.handleBroadcastTrack(c, env)
	case protocol.TypeTrackStopped:
		co.handleTrackStopped(c, env)
	case protocol.TypeEndSession:
		co.handleEndSession(c, env)
	case protocol.TypeSendLike:
		co.handleSendLike(c, env)
	case protocol.TypeSendTempoRequest:
		co.handleSendTempo(c, env)
	case protocol.TypeSubscribe:
		co.handleSubscribe(c, env)
	case protocol.TypeStartPoll:
		co.handleStartPoll(c, env)
	case protocol.TypeEndPoll:
		co.handleClosePoll(c, env, false)
	case protocol.TypeCancelPoll:
		co.handleClosePoll(c, env, true)
	case protocol.TypeVoteOnPoll:
		co.handleVoteOnPoll(c, env)
	case protocol.TypeSendAnnouncement:
		co.handleSendAnnouncement(c, env)
	case protocol.TypeCancelAnnouncement:
		co.handleCancelAnnouncement(c, env)
	case protocol.TypePing:
		c.Send(protocol.Message{Type: protocol.TypePong, Data: protocol.AckData{MessageID: env.MessageID}})
	case protocol.TypeGetSessions:
		co.handleGetSessions(c, env)
	default:
		// Unknown types are dropped without a NACK so old servers tolerate
		// newer clients.
		logging.Debug().Str("message_type", env.Type).Uint64("conn_id", c.ID()).Msg("dropping unknown message type")
	}
}

// HandleDisconnect releases everything the connection held: presence claims
// for its subscriptions and any sessions it owned.
func (co *Coordinator) HandleDisconnect(c *hub.Conn) {
	co.mu.Lock()
	subs := co.subs[c.ID()]
	delete(co.subs, c.ID())
	delete(co.conns, c.ID())
	co.mu.Unlock()

	clientID := c.ClientID()
	if clientID != "" {
		for sessionID, claims := range subs {
			for i := 0; i < claims; i++ {
				co.presence.Unsubscribe(sessionID, clientID)
			}
		}
	}

	for _, sessionID := range co.registry.SessionsOwnedBy(c.ID()) {
		logging.Info().
			Str("session_id", sessionID).
			Uint64("conn_id", c.ID()).
			Msg("ending session after owner disconnect")
		co.endSession(sessionID, ReasonDJDisconnected)
	}
}

// trackConn remembers the connection for targeted sends (SESSION_EXPIRED).
func (co *Coordinator) trackConn(c *hub.Conn) {
	co.mu.Lock()
	co.conns[c.ID()] = c
	co.mu.Unlock()
}

// connByID returns a tracked connection.
func (co *Coordinator) connByID(id uint64) (*hub.Conn, bool) {
	co.mu.RLock()
	defer co.mu.RUnlock()
	c, ok := co.conns[id]
	return c, ok
}

// nack sends a NACK and counts it by reason. Callers pass fixed reason
// strings so the metric label stays bounded.
func (co *Coordinator) nack(c *hub.Conn, messageID, reason string) {
	metrics.NacksTotal.WithLabelValues(reason).Inc()
	c.Send(protocol.Nack(messageID, reason))
}

// nackInvalid rejects a malformed or invalid payload. The wire reason
// carries the validation detail; the metric label stays fixed.
func (co *Coordinator) nackInvalid(c *hub.Conn, messageID string, err error) {
	metrics.NacksTotal.WithLabelValues("invalid payload").Inc()
	c.Send(protocol.Nack(messageID, err.Error()))
}

// endSession is the single teardown path for all three end triggers.
// Registry removal decides idempotency: whichever caller actually removes
// the session runs the cleanup, every later caller is a no-op.
func (co *Coordinator) endSession(sessionID, reason string) {
	snap, ok := co.registry.Remove(sessionID)
	if !ok {
		return
	}

	// Flush the standing tempo tally before state is purged, so the last
	// track's feedback survives into storage.
	if snap.CurrentTrack != nil {
		trackKey := snap.CurrentTrack.TrackKey()
		if tally := co.tempo.Reset(sessionID); tally.Total > 0 {
			co.persistTempoTally(sessionID, trackKey, tally)
		}
	}

	// An active poll closes as cancelled, persisted but not broadcast: the
	// SESSION_ENDED event supersedes any poll UI.
	if result, had := co.polls.PurgeSession(sessionID); had {
		co.persistPollClose(result)
	}

	co.likes.PurgeSession(sessionID)
	co.tempo.PurgeSession(sessionID)
	co.presence.PurgeSession(sessionID)

	endedAt := co.now()
	co.writer.Go("session_end", func(ctx context.Context) error {
		return co.writer.Store().EndSession(ctx, sessionID, endedAt)
	})

	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeSessionEnded,
		Data: protocol.SessionEndedData{SessionID: sessionID, Reason: reason},
	})

	logging.Info().
		Str("session_id", sessionID).
		Str("dj_name", snap.DJName).
		Str("reason", reason).
		Msg("session ended")

	if reason == ReasonExpired {
		if owner, found := co.connByID(snap.OwnerConnID); found {
			owner.Send(protocol.Message{
				Type: protocol.TypeSessionExpired,
				Data: protocol.SessionEndedData{SessionID: sessionID, Reason: reason},
			})
		}
	}
}

// SweepOnce runs one pass of lifecycle maintenance: expire idle or too-old
// sessions and drop stale presence entries. Invoked by the sweeper service.
func (co *Coordinator) SweepOnce() {
	for _, sessionID := range co.registry.SweepCandidates(co.cfg.Session.IdleThreshold, co.cfg.Session.MaxAge) {
		co.endSession(sessionID, ReasonExpired)
	}
	co.presence.SweepStale(co.cfg.Presence.StaleThreshold)
}

// HeartbeatTick broadcasts listener counts for every session whose derived
// count changed since the last broadcast. Invoked by the heartbeat service.
func (co *Coordinator) HeartbeatTick() {
	for sessionID, count := range co.presence.ChangedCounts() {
		co.hub.Broadcast(protocol.Message{
			Type: protocol.TypeListenerCount,
			Data: protocol.ListenerCountData{SessionID: sessionID, Count: count},
		})
	}
}

// onPollExpired fires from the poll auto-close timer.
func (co *Coordinator) onPollExpired(result poll.Result) {
	co.broadcastPollEnded(result)
	co.persistPollClose(result)
	logging.Info().
		Int64("poll_id", result.ID).
		Str("session_id", result.SessionID).
		Int("total_votes", result.Total).
		Msg("poll auto-closed")
}

// Shutdown warns connected clients and drains in-flight persistence writes.
func (co *Coordinator) Shutdown(ctx context.Context) error {
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeServerShutdown,
		Data: protocol.ServerShutdownData{Reason: "server shutting down"},
	})

	endedAt := co.now()
	for _, snap := range co.registry.List() {
		sessionID := snap.SessionID
		co.writer.Go("session_end", func(ctx context.Context) error {
			return co.writer.Store().EndSession(ctx, sessionID, endedAt)
		})
	}

	if err := co.likeWriter.Flush(ctx); err != nil {
		return err
	}
	return co.writer.Flush(ctx)
}

// persistTempoTally writes the final tempo tally for a finished track.
func (co *Coordinator) persistTempoTally(sessionID, trackKey string, tally engagement.Tally) {
	rec := store.TempoTally{Faster: tally.Faster, Slower: tally.Slower, Perfect: tally.Perfect}
	co.writer.Go("tempo", func(ctx context.Context) error {
		return co.writer.Store().PersistTempoVotes(ctx, sessionID, trackKey, rec)
	})
}

// persistPollClose records a poll's final counts and winner.
func (co *Coordinator) persistPollClose(result poll.Result) {
	co.writer.Go("poll_close", func(ctx context.Context) error {
		return co.writer.Store().ClosePoll(ctx, result.ID, result.Votes, result.WinnerIndex, result.Cancelled)
	})
}

// broadcastPollEnded emits the terminal POLL_ENDED event: once on the shared
// topic, plus a direct copy to the DJ connection so the desktop UI gets the
// result even if its topic delivery was dropped. A gone DJ socket is fine.
func (co *Coordinator) broadcastPollEnded(result poll.Result) {
	msg := protocol.Message{
		Type: protocol.TypePollEnded,
		Data: protocol.PollEndedData{
			SessionID:   result.SessionID,
			PollID:      result.ID,
			Question:    result.Question,
			Options:     result.Options,
			Votes:       result.Votes,
			WinnerIndex: result.WinnerIndex,
			Cancelled:   result.Cancelled,
		},
	}
	co.hub.Broadcast(msg)

	if snap, ok := co.registry.Get(result.SessionID); ok {
		if owner, found := co.connByID(snap.OwnerConnID); found {
			owner.Send(msg)
		}
	}
}
