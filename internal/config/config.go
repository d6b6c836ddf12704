// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package config defines Mixcast configuration and its koanf-based loading.
//
// Configuration is layered (highest priority wins):
//  1. Environment variables (MIXCAST_ prefix, e.g. MIXCAST_SERVER_LISTEN_ADDR)
//  2. YAML config file (config.yaml, or CONFIG_PATH override)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the relay server.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Session     SessionConfig     `koanf:"session"`
	Presence    PresenceConfig    `koanf:"presence"`
	Engagement  EngagementConfig  `koanf:"engagement"`
	Poll        PollConfig        `koanf:"poll"`
	Store       StoreConfig       `koanf:"store"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr"`

	// MaxFrameBytes is the inbound WebSocket frame ceiling. Oversized frames
	// close the connection with a policy violation.
	MaxFrameBytes int64 `koanf:"max_frame_bytes"`

	// SendBufferSize is the per-connection outbound channel capacity.
	SendBufferSize int `koanf:"send_buffer_size"`

	// BulkSendThreshold is the outbound buffer fill level above which bulk
	// payloads (session lists, late-join state) are skipped for a socket.
	BulkSendThreshold int `koanf:"bulk_send_threshold"`

	// InboundRatePerSec / InboundBurst bound per-connection message intake.
	InboundRatePerSec float64 `koanf:"inbound_rate_per_sec"`
	InboundBurst      int     `koanf:"inbound_burst"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// SecurityConfig holds token validation settings.
type SecurityConfig struct {
	// JWTSecret enables DJ token validation when set (32+ characters).
	// Empty secret means every registration falls back to anonymous.
	JWTSecret string `koanf:"jwt_secret"`
}

// SessionConfig holds session registry lifecycle tunables.
type SessionConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// IdleThreshold ends sessions with no owner activity for this long.
	IdleThreshold time.Duration `koanf:"idle_threshold"`

	// MaxAge hard-caps session lifetime regardless of activity.
	MaxAge time.Duration `koanf:"max_age"`
}

// PresenceConfig holds listener presence tunables.
type PresenceConfig struct {
	// StickyWindow keeps a recently disconnected client counted as present,
	// absorbing page reloads without count flicker.
	StickyWindow time.Duration `koanf:"sticky_window"`

	// StaleThreshold is the outer bound after which entries are swept.
	StaleThreshold time.Duration `koanf:"stale_threshold"`

	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// EngagementConfig holds like/tempo/nonce guard tunables.
type EngagementConfig struct {
	TempoTTL time.Duration `koanf:"tempo_ttl"`

	LikeRetryAttempts int           `koanf:"like_retry_attempts"`
	LikeRetryBackoff  time.Duration `koanf:"like_retry_backoff"`

	NonceTTL      time.Duration `koanf:"nonce_ttl"`
	NonceCapacity int           `koanf:"nonce_capacity"`
}

// PollConfig holds poll engine tunables.
type PollConfig struct {
	// PersistWaitAttempts/PersistWaitDelay bound the wait for session
	// persistence before a poll row may be created.
	PersistWaitAttempts int           `koanf:"persist_wait_attempts"`
	PersistWaitDelay    time.Duration `koanf:"persist_wait_delay"`

	// MinDuration floors requested auto-close durations.
	MinDuration time.Duration `koanf:"min_duration"`
}

// StoreConfig selects and tunes the persistence adapter.
type StoreConfig struct {
	// Backend is "postgres" or "memory".
	Backend     string        `koanf:"backend"`
	PostgresURL string        `koanf:"postgres_url"`
	Timeout     time.Duration `koanf:"timeout"`

	RetryAttempts int           `koanf:"retry_attempts"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        ":8844",
			MaxFrameBytes:     10 * 1024,
			SendBufferSize:    256,
			BulkSendThreshold: 64,
			InboundRatePerSec: 20,
			InboundBurst:      40,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Security: SecurityConfig{
			JWTSecret: "",
		},
		Session: SessionConfig{
			SweepInterval: time.Minute,
			IdleThreshold: 2 * time.Hour,
			MaxAge:        12 * time.Hour,
		},
		Presence: PresenceConfig{
			StickyWindow:      30 * time.Second,
			StaleThreshold:    10 * time.Minute,
			HeartbeatInterval: 2 * time.Second,
		},
		Engagement: EngagementConfig{
			TempoTTL:          5 * time.Minute,
			LikeRetryAttempts: 3,
			LikeRetryBackoff:  250 * time.Millisecond,
			NonceTTL:          10 * time.Minute,
			NonceCapacity:     4096,
		},
		Poll: PollConfig{
			PersistWaitAttempts: 25,
			PersistWaitDelay:    200 * time.Millisecond,
			MinDuration:         5 * time.Second,
		},
		Store: StoreConfig{
			Backend:       "memory",
			PostgresURL:   "",
			Timeout:       5 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Server.MaxFrameBytes <= 0 {
		return fmt.Errorf("server.max_frame_bytes must be positive, got %d", c.Server.MaxFrameBytes)
	}
	if c.Server.SendBufferSize <= 0 {
		return fmt.Errorf("server.send_buffer_size must be positive, got %d", c.Server.SendBufferSize)
	}
	if c.Server.BulkSendThreshold > c.Server.SendBufferSize {
		return fmt.Errorf("server.bulk_send_threshold (%d) exceeds send_buffer_size (%d)",
			c.Server.BulkSendThreshold, c.Server.SendBufferSize)
	}
	if s := c.Security.JWTSecret; s != "" && len(s) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters when set")
	}
	if c.Presence.StickyWindow <= 0 {
		return fmt.Errorf("presence.sticky_window must be positive")
	}
	if c.Presence.StaleThreshold < c.Presence.StickyWindow {
		return fmt.Errorf("presence.stale_threshold must not be shorter than sticky_window")
	}
	if c.Presence.HeartbeatInterval <= 0 {
		return fmt.Errorf("presence.heartbeat_interval must be positive")
	}
	if c.Engagement.TempoTTL <= 0 {
		return fmt.Errorf("engagement.tempo_ttl must be positive")
	}
	if c.Engagement.NonceCapacity <= 0 {
		return fmt.Errorf("engagement.nonce_capacity must be positive")
	}
	if c.Poll.PersistWaitAttempts <= 0 {
		return fmt.Errorf("poll.persist_wait_attempts must be positive")
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be postgres or memory, got %q", c.Store.Backend)
	}
	return nil
}
