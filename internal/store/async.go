// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mixcast/mixcast/internal/logging"
	"github.com/mixcast/mixcast/internal/metrics"
)

// AsyncWriter runs persistence calls on detached goroutines with bounded
// retry and a circuit breaker, so a degraded database never blocks the
// socket path. A write abandoned after its retries is logged as lost —
// in-memory truth continues regardless.
type AsyncWriter struct {
	store    Store
	attempts int
	backoff  time.Duration
	breaker  *gobreaker.CircuitBreaker[any]
	wg       sync.WaitGroup
}

// NewAsyncWriter wraps the store with retry and breaker policy.
func NewAsyncWriter(s Store, attempts int, backoff time.Duration) *AsyncWriter {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	settings := gobreaker.Settings{
		Name:    "persistence",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("persistence circuit breaker state change")
		},
	}
	return &AsyncWriter{
		store:    s,
		attempts: attempts,
		backoff:  backoff,
		breaker:  gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Store returns the wrapped store for synchronous reads
// (SessionPersisted) that carry their own bounded wait.
func (w *AsyncWriter) Store() Store {
	return w.store
}

// Go runs fn on a detached goroutine with the writer's retry policy.
// The caller never observes the outcome; failures are counted and logged.
func (w *AsyncWriter) Go(op string, fn func(ctx context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(op, fn)
	}()
}

// run executes fn with retries through the breaker.
func (w *AsyncWriter) run(op string, fn func(ctx context.Context) error) {
	var lastErr error
	for attempt := 0; attempt < w.attempts; attempt++ {
		if attempt > 0 {
			metrics.StoreRetriesTotal.WithLabelValues(op).Inc()
			// Exponential backoff from the configured base.
			time.Sleep(w.backoff << (attempt - 1))
		}

		_, err := w.breaker.Execute(func() (any, error) {
			return nil, fn(context.Background())
		})
		if err == nil {
			return
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Fast-fail while the breaker is open; retrying inside the
			// window only burns goroutine time.
			break
		}
	}

	metrics.StoreFailuresTotal.WithLabelValues(op).Inc()
	logging.Err(lastErr).Str("operation", op).Msg("persistence write lost after bounded retries")
}

// Flush waits for in-flight writes, bounded by ctx. Used at shutdown.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
