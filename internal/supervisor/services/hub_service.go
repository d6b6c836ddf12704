// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package services

import (
	"context"
)

// ContextRunner matches the broadcast hub's RunWithContext method, keeping
// this package free of a hub import.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the broadcast hub. RunWithContext already follows
// the suture.Service shape; this wrapper only adds a name.
type HubService struct {
	hub  ContextRunner
	name string
}

// NewHubService wraps the broadcast hub for supervision.
func NewHubService(hub ContextRunner) *HubService {
	return &HubService{hub: hub, name: "broadcast-hub"}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (s *HubService) String() string {
	return s.name
}
