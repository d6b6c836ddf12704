// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package metrics exposes Prometheus instrumentation for the relay:
// connection and session gauges, broadcast volume, engagement counters,
// and persistence retry/failure counts. Served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients tracks open WebSocket connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mixcast_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// LiveSessions tracks registered live sessions.
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mixcast_live_sessions",
			Help: "Current number of live DJ sessions",
		},
	)

	// BroadcastsTotal counts topic broadcasts by message type.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixcast_broadcasts_total",
			Help: "Total broadcast messages published to the live-session topic",
		},
		[]string{"type"},
	)

	// DroppedSendsTotal counts per-client sends dropped on full buffers.
	DroppedSendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixcast_dropped_sends_total",
			Help: "Total messages dropped because a client send buffer was full",
		},
	)

	// LikesTotal counts accepted track likes.
	LikesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixcast_likes_total",
			Help: "Total accepted track likes",
		},
	)

	// TempoVotesTotal counts accepted tempo votes by preference.
	TempoVotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixcast_tempo_votes_total",
			Help: "Total accepted tempo votes",
		},
		[]string{"preference"},
	)

	// PollVotesTotal counts accepted poll votes.
	PollVotesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixcast_poll_votes_total",
			Help: "Total accepted poll votes",
		},
	)

	// NacksTotal counts rejections by reason category.
	NacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixcast_nacks_total",
			Help: "Total NACK responses sent",
		},
		[]string{"reason"},
	)

	// StoreRetriesTotal counts persistence retry attempts by operation.
	StoreRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixcast_store_retries_total",
			Help: "Total persistence operation retries",
		},
		[]string{"operation"},
	)

	// StoreFailuresTotal counts persistence writes abandoned after retries.
	StoreFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixcast_store_failures_total",
			Help: "Total persistence operations abandoned after bounded retries",
		},
		[]string{"operation"},
	)
)
