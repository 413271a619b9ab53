package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestCadenceFollowsRunningState(t *testing.T) {
	running := atomic.Bool{}
	c := New(time.Second, time.Minute, func(context.Context) {}, running.Load, nil)

	if got := c.interval(); got != time.Minute {
		t.Fatalf("idle graph must use the slow cadence, got %s", got)
	}
	running.Store(true)
	if got := c.interval(); got != time.Second {
		t.Fatalf("a running node must switch to the fast cadence, got %s", got)
	}
}

func TestRunFetchesImmediatelyAndOnTicks(t *testing.T) {
	var fetches atomic.Int64
	c := New(10*time.Millisecond, 10*time.Millisecond, func(context.Context) {
		fetches.Add(1)
	}, func() bool { return true }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = c.Run(ctx); close(done) }()

	deadline := time.After(2 * time.Second)
	for fetches.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 fetches, got %d", fetches.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestSuspendStopsPollingAndResumeFetchesImmediately(t *testing.T) {
	var fetches atomic.Int64
	c := New(10*time.Millisecond, 10*time.Millisecond, func(context.Context) {
		fetches.Add(1)
	}, func() bool { return false }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = c.Run(ctx); close(done) }()

	c.Suspend()
	quiesced := fetches.Load()
	time.Sleep(60 * time.Millisecond)
	if got := fetches.Load(); got != quiesced {
		t.Fatalf("no fetch may happen while suspended: %d -> %d", quiesced, got)
	}

	c.Resume()
	deadline := time.After(2 * time.Second)
	for fetches.Load() <= quiesced {
		select {
		case <-deadline:
			t.Fatalf("resume must trigger an immediate fetch")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestSignalsAfterShutdownDoNotBlock(t *testing.T) {
	c := New(time.Hour, time.Hour, func(context.Context) {}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = c.Run(ctx); close(done) }()
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		c.Suspend()
		c.Resume()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Suspend/Resume must not block after Run exits")
	}
}
