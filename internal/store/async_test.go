// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriterRetriesUntilSuccess(t *testing.T) {
	w := NewAsyncWriter(NewMemoryStore(), 3, time.Millisecond)

	var calls int32
	w.Go("test", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestAsyncWriterGivesUpAfterBoundedRetries(t *testing.T) {
	w := NewAsyncWriter(NewMemoryStore(), 3, time.Millisecond)

	var calls int32
	w.Go("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want exactly 3", got)
	}
}

func TestAsyncWriterFlushHonorsContext(t *testing.T) {
	w := NewAsyncWriter(NewMemoryStore(), 1, time.Millisecond)

	release := make(chan struct{})
	w.Go("test", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	close(release)
}

func TestMemoryStoreForcedFailures(t *testing.T) {
	s := NewMemoryStore()
	s.FailOps["like"] = true

	err := s.PersistLike(context.Background(), LikeRecord{SessionID: "sess", ClientID: "alice"})
	if err == nil {
		t.Fatal("forced failure did not error")
	}
	if s.LikeCount() != 0 {
		t.Error("failed like was stored")
	}

	delete(s.FailOps, "like")
	if err := s.PersistLike(context.Background(), LikeRecord{SessionID: "sess", ClientID: "alice"}); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if s.LikeCount() != 1 {
		t.Error("like not stored")
	}
}

func TestMemoryStorePollLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.CreatePoll(ctx, PollRecord{SessionID: "sess", Question: "q", Options: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	id2, _ := s.CreatePoll(ctx, PollRecord{SessionID: "sess"})
	if id2 == id {
		t.Error("poll ids not unique")
	}

	if err := s.PersistPollVote(ctx, id, "alice", 1); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if err := s.PersistPollVote(ctx, 999, "alice", 1); err == nil {
		t.Error("vote on unknown poll succeeded")
	}

	if s.PollIsClosed(id) {
		t.Error("poll closed before ClosePoll")
	}
	if err := s.ClosePoll(ctx, id, []int{0, 1}, 1, false); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !s.PollIsClosed(id) {
		t.Error("poll not closed")
	}
}
