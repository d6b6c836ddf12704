// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package coordinator

import (
	"context"

	"github.com/mixcast/mixcast/internal/engagement"
	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/metrics"
	"github.com/mixcast/mixcast/internal/protocol"
	"github.com/mixcast/mixcast/internal/store"
)

// handleSendLike accepts a like once per (client, session, track).
// A duplicate still ACKs — retries of delivered likes are expected — but the
// sender learns via LIKE_ALREADY_SENT and no LIKE_RECEIVED goes out.
func (co *Coordinator) handleSendLike(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SendLikePayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	clientID := c.ClientID()
	if clientID == "" {
		co.nack(c, env.MessageID, "clientId required to like")
		return
	}
	if _, ok := co.registry.Get(p.SessionID); !ok {
		co.nack(c, env.MessageID, "session not found")
		return
	}

	trackKey := p.Track.TrackKey()
	if !co.likes.Record(p.SessionID, clientID, trackKey) {
		c.Send(protocol.Ack(env.MessageID))
		c.Send(protocol.Message{
			Type: protocol.TypeLikeAlreadySent,
			Data: protocol.LikeAlreadySentData{SessionID: p.SessionID, TrackKey: trackKey},
		})
		return
	}

	metrics.LikesTotal.Inc()
	c.Send(protocol.Ack(env.MessageID))
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeLikeReceived,
		Data: protocol.LikeReceivedData{SessionID: p.SessionID, ClientID: clientID, Track: p.Track},
	})

	rec := store.LikeRecord{
		SessionID: p.SessionID,
		ClientID:  clientID,
		Track:     p.Track,
		LikedAt:   co.now(),
	}
	co.likeWriter.Go("like", func(ctx context.Context) error {
		return co.likeWriter.Store().PersistLike(ctx, rec)
	})
}

// handleSendTempo records a last-wins tempo preference and broadcasts the
// fresh tally. "clear" withdraws the client's vote.
func (co *Coordinator) handleSendTempo(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SendTempoPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	clientID := c.ClientID()
	if clientID == "" {
		co.nack(c, env.MessageID, "clientId required for tempo feedback")
		return
	}
	if _, ok := co.registry.Get(p.SessionID); !ok {
		co.nack(c, env.MessageID, "session not found")
		return
	}

	co.tempo.Vote(p.SessionID, clientID, p.Preference)
	if p.Preference != engagement.TempoClear {
		metrics.TempoVotesTotal.WithLabelValues(p.Preference).Inc()
	}
	c.Send(protocol.Ack(env.MessageID))

	tally := co.tempo.Tally(p.SessionID)
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeTempoFeedback,
		Data: protocol.TempoFeedbackData{
			SessionID: p.SessionID,
			Faster:    tally.Faster,
			Slower:    tally.Slower,
			Perfect:   tally.Perfect,
			Total:     tally.Total,
		},
	})
}
