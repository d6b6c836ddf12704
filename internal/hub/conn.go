// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mixcast/mixcast/internal/auth"
	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/metrics"
	"github.com/mixcast/mixcast/internal/protocol"
)

const (
	// writeWait is the deadline for a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// pump declares it dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// connSeq assigns each connection a process-unique id. The id, not the
// client-chosen clientId, is what session ownership binds to.
var connSeq atomic.Uint64

// Handler receives inbound frames and disconnect notifications.
type Handler interface {
	HandleMessage(c *Conn, data []byte)
	HandleDisconnect(c *Conn)
}

// ConnOptions tunes a single connection.
type ConnOptions struct {
	SendBufferSize    int
	MaxFrameBytes     int64
	BulkSendThreshold int
	InboundRatePerSec float64
	InboundBurst      int
}

// Conn is one WebSocket participant: DJ or listener, the server cannot
// tell until frames arrive. A read pump and a write pump own the socket;
// everything else talks to the connection through the send channel.
type Conn struct {
	id      uint64
	hub     *Hub
	ws      *websocket.Conn
	send    chan []byte
	handler Handler
	limiter *rate.Limiter

	maxFrameBytes int64
	bulkThreshold int

	mu         sync.Mutex
	clientID   string
	identity   *auth.DJIdentity
	sendClosed bool
}

// NewConn wraps an upgraded WebSocket. Call Start to begin the pumps.
func NewConn(h *Hub, ws *websocket.Conn, handler Handler, opts ConnOptions) *Conn {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = h.sendBuffer
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = protocol.MaxFrameBytes
	}
	if opts.BulkSendThreshold <= 0 {
		opts.BulkSendThreshold = opts.SendBufferSize / 4
	}
	var limiter *rate.Limiter
	if opts.InboundRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.InboundRatePerSec), opts.InboundBurst)
	}
	return &Conn{
		id:            connSeq.Add(1),
		hub:           h,
		ws:            ws,
		send:          make(chan []byte, opts.SendBufferSize),
		handler:       handler,
		limiter:       limiter,
		maxFrameBytes: opts.MaxFrameBytes,
		bulkThreshold: opts.BulkSendThreshold,
	}
}

// ID returns the process-unique connection id.
func (c *Conn) ID() uint64 { return c.id }

// Start registers the connection with the hub and launches both pumps.
func (c *Conn) Start() {
	c.hub.enroll(c)
	go c.writePump()
	go c.readPump()
}

// BindClientID locks in the first clientId seen on this connection.
// Returns the bound id and whether the given id matches it.
func (c *Conn) BindClientID(clientID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clientID == "" {
		c.clientID = clientID
		return clientID, true
	}
	return c.clientID, c.clientID == clientID
}

// ClientID returns the bound clientId, empty until the first frame binds it.
func (c *Conn) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// SetIdentity attaches the verified DJ identity after token validation.
func (c *Conn) SetIdentity(id *auth.DJIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

// Identity returns the verified DJ identity, nil for anonymous connections.
func (c *Conn) Identity() *auth.DJIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Allow reports whether the inbound rate limiter admits another frame.
func (c *Conn) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// Send marshals and queues a message for this connection only.
// Drops when the send buffer is full or the connection is gone; a client
// that cannot drain its own replies is beyond saving.
func (c *Conn) Send(msg protocol.Message) {
	payload, err := protocol.Marshal(msg)
	if err != nil {
		logging.Err(err).Str("message_type", msg.Type).Msg("failed to marshal direct send")
		return
	}
	if !c.trySend(payload) {
		metrics.DroppedSendsTotal.Inc()
		logging.Warn().Uint64("conn_id", c.id).Str("message_type", msg.Type).Msg("dropping direct message, connection backed up or closed")
	}
}

// trySend queues a raw payload unless the connection is closed or its
// buffer is full. The lock orders sends against closeSend: timer and sweep
// goroutines send to connections the hub may be tearing down concurrently.
func (c *Conn) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once, stopping the write pump.
// Only the hub calls this.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// SendBulk queues a message unless the connection is already backed up
// past the bulk threshold. Used for optional payloads (session catalogs,
// late-join state) that a struggling client can live without.
func (c *Conn) SendBulk(msg protocol.Message) bool {
	if len(c.send) > c.bulkThreshold {
		metrics.DroppedSendsTotal.Inc()
		logging.Debug().Uint64("conn_id", c.id).Str("message_type", msg.Type).Msg("backpressure, skipping bulk send")
		return false
	}
	c.Send(msg)
	return true
}

// readPump pulls frames off the socket and hands them to the handler.
// Runs until the socket errors or closes, then triggers disconnect cleanup.
func (c *Conn) readPump() {
	defer func() {
		c.handler.HandleDisconnect(c)
		c.hub.drop(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.maxFrameBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Uint64("conn_id", c.id).Msg("websocket read error")
			}
			return
		}
		c.handler.HandleMessage(c, data)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
