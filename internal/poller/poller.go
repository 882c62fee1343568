// Package poller converts capability advertisements into leases against
// the DMS. Each advertised capability runs its own loop; on a lease, the
// loop hands off to a Session and immediately continues so the next lease
// can be acquired. On no-lease or transport error, the loop backs off with
// jitter.
package poller

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aukilabs/compute-node/internal/jitter"
	"github.com/aukilabs/compute-node/internal/registry"
	"github.com/aukilabs/compute-node/internal/runnerapi"
)

// maxSleepChunk bounds how long a single backoff sleep can run before
// re-checking the shutdown context, so cancellation is observed promptly.
const maxSleepChunk = 50 * time.Millisecond

// Leaser is the subset of the DMS client the poller needs.
type Leaser interface {
	LeaseByCapability(ctx context.Context, capability string) (*runnerapi.LeaseEnvelope, error)
}

// Config holds the poller's tunables, sourced from NodeConfig.
type Config struct {
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	MaxConcurrency int
	// NodeRatePerSecond caps total lease attempts per second across every
	// advertised capability; zero disables the node-wide throttle.
	NodeRatePerSecond float64
}

// SessionStarter is invoked with a fresh lease; it must not block the
// poller loop — the expectation is it spawns its own goroutine and reports
// completion via Done.
type SessionStarter func(ctx context.Context, lease runnerapi.LeaseEnvelope, done func())

// Poller runs one loop per advertised capability.
type Poller struct {
	client   Leaser
	registry *registry.Registry
	cfg      Config
	start    SessionStarter

	limiter  *rate.Limiter
	inFlight chan struct{}
}

func New(client Leaser, reg *registry.Registry, cfg Config, start SessionStarter) *Poller {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	p := &Poller{
		client:   client,
		registry: reg,
		cfg:      cfg,
		start:    start,
		inFlight: make(chan struct{}, cfg.MaxConcurrency),
	}
	if cfg.NodeRatePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.NodeRatePerSecond), cfg.MaxConcurrency)
	}
	return p
}

// Run blocks until ctx is cancelled, running one loop per capability known
// to the registry at call time.
func (p *Poller) Run(ctx context.Context) error {
	caps := p.registry.Capabilities()
	g, gctx := errgroup.WithContext(ctx)
	for _, cap := range caps {
		cap := cap
		g.Go(func() error {
			p.loop(gctx, cap)
			return nil
		})
	}
	<-gctx.Done()
	_ = g.Wait()
	return nil
}

func (p *Poller) loop(ctx context.Context, capability string) {
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case p.inFlight <- struct{}{}:
		case <-ctx.Done():
			return
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				<-p.inFlight
				return
			}
		}

		lease, err := p.client.LeaseByCapability(ctx, capability)
		if err != nil || lease == nil {
			<-p.inFlight
			if ctx.Err() != nil {
				return
			}
			sleepInterruptible(ctx, JitteredDelay(p.cfg.BackoffMin, p.cfg.BackoffMax))
			continue
		}

		leased := *lease
		p.start(ctx, leased, func() { <-p.inFlight })
	}
}

// JitteredDelay returns a delay deterministically derived from the current
// wall-clock sub-second component, clamped to [min, max]. For any (min,
// max) with 0 <= min <= max the result lies in [min, max].
func JitteredDelay(min, max time.Duration) time.Duration {
	return jitter.Delay(min, max)
}

func sleepInterruptible(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		chunk := remaining
		if chunk > maxSleepChunk {
			chunk = maxSleepChunk
		}
		timer := time.NewTimer(chunk)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
