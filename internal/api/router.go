// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package api exposes the relay's HTTP surface: the WebSocket entry point,
// health probes, and Prometheus metrics. Everything stateful happens over
// the socket; HTTP exists only to get clients onto it and keep operators
// informed.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mixcast/mixcast/internal/config"
	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/logging"
)

// Router builds the HTTP handler for the relay.
type Router struct {
	cfg     *config.Config
	hub     *hub.Hub
	handler hub.Handler
}

// NewRouter creates the router. handler receives frames from every
// connection accepted at /ws.
func NewRouter(cfg *config.Config, h *hub.Hub, handler hub.Handler) *Router {
	return &Router{cfg: cfg, hub: h, handler: handler}
}

// Handler assembles the chi route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	// The handshake is the only per-request cost worth limiting; everything
	// after upgrade is governed by the per-connection frame limiter.
	r.With(httprate.LimitByIP(30, time.Minute)).Get("/ws", rt.serveWS)

	r.Get("/healthz", rt.healthz)
	r.Get("/readyz", rt.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// upgrader returns the WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (rt *Router) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      rt.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin validates the Origin header against the configured allowlist.
// A missing Origin is allowed: the DJ desktop app and other non-browser
// clients don't send one, and browsers always do.
func (rt *Router) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range rt.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// serveWS upgrades the request and starts the connection pumps.
func (rt *Router) serveWS(w http.ResponseWriter, r *http.Request) {
	up := rt.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := hub.NewConn(rt.hub, ws, rt.handler, hub.ConnOptions{
		SendBufferSize:    rt.cfg.Server.SendBufferSize,
		MaxFrameBytes:     rt.cfg.Server.MaxFrameBytes,
		BulkSendThreshold: rt.cfg.Server.BulkSendThreshold,
		InboundRatePerSec: rt.cfg.Server.InboundRatePerSec,
		InboundBurst:      rt.cfg.Server.InboundBurst,
	})
	conn.Start()
}

// healthz reports liveness. The relay carries all state in memory; if this
// handler runs, the process is serving.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
