// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package coordinator

import (
	"time"

	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/protocol"
)

// handleSendAnnouncement publishes a DJ announcement, owner-only. A new
// announcement replaces the previous one; late joiners receive whichever is
// active at subscribe time.
func (co *Coordinator) handleSendAnnouncement(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SendAnnouncementPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	ttl := time.Duration(p.TTLSec) * time.Second
	ann, err := co.registry.SetAnnouncement(p.SessionID, c.ID(), p.Message, ttl)
	if err != nil {
		co.nackOwnership(c, env.MessageID, err)
		return
	}

	c.Send(protocol.Ack(env.MessageID))
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeAnnouncementReceived,
		Data: protocol.AnnouncementData{
			SessionID: p.SessionID,
			Message:   ann.Message,
			Timestamp: ann.Timestamp,
			ExpiresAt: ann.ExpiresAt,
		},
	})
}

// handleCancelAnnouncement clears the active announcement, owner-only.
func (co *Coordinator) handleCancelAnnouncement(c *hub.Conn, env *protocol.Envelope) {
	p, err := protocol.DecodePayload[protocol.SessionRefPayload](env)
	if err != nil {
		co.nackInvalid(c, env.MessageID, err)
		return
	}

	if err := co.registry.ClearAnnouncement(p.SessionID, c.ID()); err != nil {
		co.nackOwnership(c, env.MessageID, err)
		return
	}

	c.Send(protocol.Ack(env.MessageID))
	co.hub.Broadcast(protocol.Message{
		Type: protocol.TypeAnnouncementCancelled,
		Data: protocol.AnnouncementCancelledData{SessionID: p.SessionID},
	})
}
