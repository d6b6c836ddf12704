// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package engagement

import (
	"sync"
	"time"
)

// nonceEntry pairs a nonce with its first-seen time for TTL checks.
type nonceEntry struct {
	nonce  string
	seenAt time.Time
}

// NonceCache is a FIFO-capped TTL set of recently seen message nonces.
// A retried message whose nonce is still cached must be ACKed without
// reapplying its effect. Capacity bounds memory; the oldest entry falls
// out first when full.
type NonceCache struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	order    []nonceEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewNonceCache creates a cache with the given TTL window and capacity.
func NewNonceCache(ttl time.Duration, capacity int) *NonceCache {
	return &NonceCache{
		seen:     make(map[string]time.Time),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *NonceCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Observe records the nonce and reports whether it was already seen within
// the TTL window. Empty nonces are never deduplicated.
func (c *NonceCache) Observe(nonce string) bool {
	if nonce == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictExpired(now)

	if seenAt, ok := c.seen[nonce]; ok && now.Sub(seenAt) <= c.ttl {
		return true
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest.nonce)
	}
	c.seen[nonce] = now
	c.order = append(c.order, nonceEntry{nonce: nonce, seenAt: now})
	return false
}

// evictExpired drops entries past the TTL from the front of the FIFO
// (mu held). Entries are appended in time order, so expiry is a prefix.
func (c *NonceCache) evictExpired(now time.Time) {
	cut := 0
	for cut < len(c.order) && now.Sub(c.order[cut].seenAt) > c.ttl {
		delete(c.seen, c.order[cut].nonce)
		cut++
	}
	if cut > 0 {
		c.order = c.order[cut:]
	}
}

// Len returns the number of cached nonces.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
