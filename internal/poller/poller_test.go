package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/compute-node/internal/registry"
	"github.com/aukilabs/compute-node/internal/runnerapi"
)

func TestJitteredDelayBounds(t *testing.T) {
	cases := []struct{ min, max time.Duration }{
		{0, 0},
		{10 * time.Millisecond, 10 * time.Millisecond},
		{1 * time.Second, 30 * time.Second},
		{0, 5 * time.Millisecond},
	}
	for _, c := range cases {
		for i := 0; i < 100; i++ {
			d := JitteredDelay(c.min, c.max)
			if d < c.min || d > c.max {
				t.Fatalf("JitteredDelay(%v, %v) = %v, out of bounds", c.min, c.max, d)
			}
		}
	}
}

type stubLeaser struct {
	lease *runnerapi.LeaseEnvelope
	err   error
	calls int32
}

func (s *stubLeaser) LeaseByCapability(ctx context.Context, capability string) (*runnerapi.LeaseEnvelope, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.lease, s.err
}

func TestPollerShutdownLatency(t *testing.T) {
	reg := registry.New()
	reg.Register(fakeRunner{cap: "/dummy/v1"})

	leaser := &stubLeaser{} // always no-lease, forces backoff sleeping

	p := New(leaser, reg, Config{
		BackoffMin:     20 * time.Second,
		BackoffMax:     30 * time.Second,
		MaxConcurrency: 1,
	}, func(ctx context.Context, lease runnerapi.LeaseEnvelope, done func()) { done() })

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(doneCh)
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case <-doneCh:
		if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
			t.Fatalf("poller took %v to shut down, want <= 200ms", elapsed)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("poller did not shut down within 500ms")
	}
}

type fakeRunner struct{ cap string }

func (f fakeRunner) Capability() string                  { return f.cap }
func (f fakeRunner) Run(ctx runnerapi.TaskCtx) error      { return nil }
