// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package services

import (
	"context"
	"time"
)

// TickerService invokes a callback on a fixed interval until its context
// is canceled. The presence heartbeat and the session lifecycle sweeper
// both run as ticker services in the relay layer.
type TickerService struct {
	name     string
	interval time.Duration
	tick     func()
}

// NewTickerService creates a supervised ticker.
func NewTickerService(name string, interval time.Duration, tick func()) *TickerService {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickerService{name: name, interval: interval, tick: tick}
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *TickerService) String() string {
	return s.name
}
