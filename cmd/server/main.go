// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package main is the entry point for the Mixcast relay server.
//
// The relay is the real-time coordinator between live DJ desktop apps and
// web dancers: session lifecycle, now-playing fan-out, listener presence,
// likes, tempo feedback, and live polls, all over one WebSocket endpoint.
//
// # Startup order
//
//  1. Configuration (Koanf v2: env > config.yaml > defaults)
//  2. Store: Postgres (pgx) or in-memory, wrapped by async writers
//  3. Broadcast hub and domain components behind the coordinator
//  4. Supervision tree: hub, heartbeat, sweeper, HTTP listener
//
// # Signal handling
//
// SIGINT/SIGTERM trigger graceful shutdown: a SERVER_SHUTDOWN broadcast,
// a bounded persistence drain, then process exit.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mixcast/mixcast/internal/api"
	"github.com/mixcast/mixcast/internal/auth"
	"github.com/mixcast/mixcast/internal/config"
	"github.com/mixcast/mixcast/internal/coordinator"
	"github.com/mixcast/mixcast/internal/engagement"
	"github.com/mixcast/mixcast/internal/hub"
	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/poll"
	"github.com/mixcast/mixcast/internal/presence"
	"github.com/mixcast/mixcast/internal/session"
	"github.com/mixcast/mixcast/internal/store"
	"github.com/mixcast/mixcast/internal/supervisor"
	"github.com/mixcast/mixcast/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	logging.Info().
		Str("listen_addr", cfg.Server.ListenAddr).
		Str("store_backend", cfg.Store.Backend).
		Msg("starting mixcast relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backing, err := openStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open store")
	}

	writer := store.NewAsyncWriter(backing, cfg.Store.RetryAttempts, cfg.Store.RetryBackoff)
	likeWriter := store.NewAsyncWriter(backing, cfg.Engagement.LikeRetryAttempts, cfg.Engagement.LikeRetryBackoff)

	broadcastHub := hub.NewHub(cfg.Server.SendBufferSize)

	co := coordinator.New(coordinator.Deps{
		Config:     cfg,
		Hub:        broadcastHub,
		Registry:   session.NewRegistry(),
		Presence:   presence.NewTracker(cfg.Presence.StickyWindow),
		Likes:      engagement.NewLikeLedger(),
		Tempo:      engagement.NewTempoBoard(cfg.Engagement.TempoTTL),
		Nonces:     engagement.NewNonceCache(cfg.Engagement.NonceTTL, cfg.Engagement.NonceCapacity),
		Polls:      poll.NewEngine(),
		Writer:     writer,
		LikeWriter: likeWriter,
		Tokens:     auth.NewJWTValidator(cfg.Security.JWTSecret),
	})

	router := api.NewRouter(cfg, broadcastHub, co)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router.Handler(),
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	tree.AddRelayService(services.NewHubService(broadcastHub))
	tree.AddRelayService(services.NewTickerService("presence-heartbeat", cfg.Presence.HeartbeatInterval, co.HeartbeatTick))
	tree.AddRelayService(services.NewTickerService("lifecycle-sweeper", cfg.Session.SweepInterval, co.SweepOnce))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	// The tree runs on its own context: the hub must still be fanning out
	// when the shutdown broadcast goes through it, so teardown happens
	// after co.Shutdown, not on the signal itself.
	treeCtx, stopTree := context.WithCancel(context.Background())
	defer stopTree()

	errCh := tree.ServeBackground(treeCtx)
	treeStopped := false
	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
	case err := <-errCh:
		treeStopped = true
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := co.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("persistence drain incomplete at shutdown")
	}
	// Give the write pumps a moment to flush SERVER_SHUTDOWN before the
	// hub closes their channels.
	time.Sleep(250 * time.Millisecond)

	stopTree()
	if !treeStopped {
		select {
		case <-errCh:
		case <-time.After(cfg.Server.ShutdownTimeout):
			logging.Warn().Msg("supervisor tree did not stop within the shutdown budget")
		}
	}

	if err := broadcastHub.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close broadcast hub")
	}
	if err := backing.Close(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("failed to close store")
	}

	logging.Info().Msg("mixcast relay stopped")
}

// openStore selects the persistence backend from configuration.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.PostgresURL, cfg.Store.Timeout)
	default:
		return store.NewMemoryStore(), nil
	}
}
