// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHTTPServer struct {
	listenErr error
	stopped   chan struct{}
	shutdowns int32
}

func newFakeHTTPServer(listenErr error) *fakeHTTPServer {
	return &fakeHTTPServer{listenErr: listenErr, stopped: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopped
	return errors.New("http: Server closed")
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	atomic.AddInt32(&f.shutdowns, 1)
	close(f.stopped)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer(nil)
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service never stopped")
	}
	if got := atomic.LoadInt32(&srv.shutdowns); got != 1 {
		t.Errorf("shutdown calls = %d, want 1", got)
	}
}

func TestHTTPServerServiceReportsListenFailure(t *testing.T) {
	srv := newFakeHTTPServer(errors.New("bind: address already in use"))
	svc := NewHTTPServerService(srv, time.Second)

	if err := svc.Serve(context.Background()); err == nil {
		t.Error("listen failure not reported")
	}
}

func TestTickerServiceTicksAndStops(t *testing.T) {
	var ticks int32
	svc := NewTickerService("test-ticker", 10*time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
	})
	if svc.String() != "test-ticker" {
		t.Errorf("name = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ticker never stopped")
	}

	if got := atomic.LoadInt32(&ticks); got < 3 {
		t.Errorf("ticks = %d, want at least 3", got)
	}
}
