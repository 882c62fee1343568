package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/compute-node/internal/runnerapi"
)

func TestCoalescesBurstIntoOneHeartbeat(t *testing.T) {
	var calls int32
	var lastProgress atomic.Value

	s := New(30*time.Millisecond, func(ctx context.Context, data Data) (*runnerapi.LeaseEnvelope, error) {
		atomic.AddInt32(&calls, 1)
		lastProgress.Store(data.Progress)
		return &runnerapi.LeaseEnvelope{}, nil
	}, func(*runnerapi.LeaseEnvelope) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Progress("a")
	time.Sleep(5 * time.Millisecond)
	s.Progress("b")

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 heartbeat, got %d", got)
	}
	if got := lastProgress.Load(); got != "b" {
		t.Fatalf("expected last progress to be %q, got %v", "b", got)
	}
}

func TestStopTerminatesWithAtMostOneInFlight(t *testing.T) {
	s := New(20*time.Millisecond, func(ctx context.Context, data Data) (*runnerapi.LeaseEnvelope, error) {
		return &runnerapi.LeaseEnvelope{}, nil
	}, func(*runnerapi.LeaseEnvelope) {}, nil)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Progress("x")
	start := time.Now()
	s.Stop()

	select {
	case <-done:
		if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
			t.Fatalf("scheduler took %v to stop, want <= 200ms", elapsed)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("scheduler did not stop")
	}
}
