// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package hub fans session events out to every connected WebSocket.
//
// All session-scoped events go through one shared pub/sub topic
// ("live-session", a watermill gochannel); payloads carry sessionId so
// clients self-filter. Connection-specific replies (ACK/NACK, session
// lists, late-join state) bypass the topic as direct socket sends.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/metrics"
	"github.com/mixcast/mixcast/internal/protocol"
)

// TopicLiveSession is the shared broadcast topic every connection follows.
const TopicLiveSession = "live-session"

// Hub maintains the set of active connections and fans out topic messages.
type Hub struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	conns  map[*Conn]bool
	closed bool

	Register   chan *Conn
	Unregister chan *Conn

	// done is closed on shutdown so enroll/drop never park on the
	// lifecycle channels after the hub goroutine stopped draining them.
	done chan struct{}

	sendBuffer int
}

// NewHub creates a hub with the given per-connection send buffer capacity.
func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NopLogger{},
	)
	return &Hub{
		pubsub:     pubsub,
		conns:      make(map[*Conn]bool),
		Register:   make(chan *Conn),
		Unregister: make(chan *Conn),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
	}
}

// Broadcast publishes an event to the live-session topic.
// Non-blocking for callers; fan-out happens on the hub goroutine.
func (h *Hub) Broadcast(msg protocol.Message) {
	payload, err := protocol.Marshal(msg)
	if err != nil {
		logging.Err(err).Str("message_type", msg.Type).Msg("failed to marshal broadcast")
		return
	}
	wm := message.NewMessage(watermill.NewUUID(), payload)
	if err := h.pubsub.Publish(TopicLiveSession, wm); err != nil {
		logging.Err(err).Str("message_type", msg.Type).Msg("failed to publish broadcast")
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(msg.Type).Inc()
}

// RunWithContext drives the hub until the context is canceled: connection
// lifecycle events and topic fan-out. Designed for suture supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	messages, err := h.pubsub.Subscribe(ctx, TopicLiveSession)
	if err != nil {
		return err
	}

	for {
		// Lifecycle events take priority over fan-out so the connection
		// set is consistent before messages are delivered.
		select {
		case conn := <-h.Register:
			h.addConn(conn)
			continue
		case conn := <-h.Unregister:
			h.removeConn(conn)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()

		case conn := <-h.Register:
			h.addConn(conn)

		case conn := <-h.Unregister:
			h.removeConn(conn)

		case wm, ok := <-messages:
			if !ok {
				h.shutdown()
				return ctx.Err()
			}
			h.fanOut(wm.Payload)
			wm.Ack()
		}
	}
}

// addConn registers a connection.
func (h *Hub) addConn(conn *Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	total := len(h.conns)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	logging.Info().Uint64("conn_id", conn.ID()).Int("total_clients", total).Msg("websocket client connected")
}

// enroll hands a connection to the hub goroutine. After shutdown the
// connection is refused and its send channel closed so the write pump exits.
func (h *Hub) enroll(conn *Conn) {
	select {
	case h.Register <- conn:
	case <-h.done:
		conn.closeSend()
	}
}

// drop returns a connection to the hub goroutine for removal. After shutdown
// there is nothing left to remove from; returning keeps read pumps from
// parking forever in their cleanup path.
func (h *Hub) drop(conn *Conn) {
	select {
	case h.Unregister <- conn:
	case <-h.done:
		conn.closeSend()
	}
}

// removeConn unregisters a connection and closes its send channel.
func (h *Hub) removeConn(conn *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.closeSend()
	}
	total := len(h.conns)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	logging.Info().Uint64("conn_id", conn.ID()).Int("total_clients", total).Msg("websocket client disconnected")
}

// fanOut delivers one topic payload to every connection in id order.
// A full send buffer drops the message for that connection only; slow
// consumers never stall the crowd.
func (h *Hub) fanOut(payload []byte) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })

	for _, conn := range conns {
		if !conn.trySend(payload) {
			metrics.DroppedSendsTotal.Inc()
		}
	}
}

// shutdown closes every connection's send channel and releases anything
// parked on the lifecycle channels.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)

	conns := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })

	for _, conn := range conns {
		conn.closeSend()
		delete(h.conns, conn)
	}
	logging.Info().Int("clients_closed", len(conns)).Msg("broadcast hub stopped")
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close releases the underlying pub/sub.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}
