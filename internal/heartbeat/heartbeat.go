// Package heartbeat implements the debounced watch-style coalescer that
// sits between a runner's progress updates and the DMS heartbeat call: a
// burst of N updates within one jitter window produces exactly one
// heartbeat carrying the Nth payload.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aukilabs/compute-node/internal/jitter"
	"github.com/aukilabs/compute-node/internal/runnerapi"
)

// Data is the coalesced payload sent on each heartbeat: the latest
// progress value and every event accumulated since the last dispatch.
type Data struct {
	Progress any
	Events   []any
}

// OnHeartbeat performs the DMS POST and returns the refreshed lease
// envelope it responds with.
type OnHeartbeat func(ctx context.Context, data Data) (*runnerapi.LeaseEnvelope, error)

// ApplyResponse reacts to a refreshed envelope: rotate the TokenRef, set
// the cancellation flag, and/or observe lease expiry. Session supplies
// this; the scheduler itself holds no session state.
type ApplyResponse func(*runnerapi.LeaseEnvelope)

// Scheduler coalesces Update/LogEvent calls into periodic OnHeartbeat
// dispatches, debounced by a jittered delay in [max/2, max].
type Scheduler struct {
	mu                sync.Mutex
	data              Data
	version           uint64
	dispatchedVersion uint64

	changed  chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	jitterMax     time.Duration
	onHeartbeat   OnHeartbeat
	applyResponse ApplyResponse
	logger        *slog.Logger
}

func New(jitterMax time.Duration, onHeartbeat OnHeartbeat, applyResponse ApplyResponse, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		changed:       make(chan struct{}, 1),
		stopped:       make(chan struct{}),
		jitterMax:     jitterMax,
		onHeartbeat:   onHeartbeat,
		applyResponse: applyResponse,
		logger:        logger,
	}
}

// Progress overwrites the pending progress value (latest-value-wins) and
// signals the scheduler.
func (s *Scheduler) Progress(value any) {
	s.mu.Lock()
	s.data.Progress = value
	s.version++
	s.mu.Unlock()
	s.notify()
}

// LogEvent appends to the pending event list and signals the scheduler.
func (s *Scheduler) LogEvent(value any) {
	s.mu.Lock()
	s.data.Events = append(s.data.Events, value)
	s.version++
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Stop signals the loop to return after at most one in-flight heartbeat.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Run drives the debounce loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-s.changed:
			delay := debounceDelay(s.jitterMax)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.stopped:
				timer.Stop()
				return
			case <-timer.C:
			}
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	s.mu.Lock()
	if s.version == s.dispatchedVersion {
		s.mu.Unlock()
		return
	}
	snapshot := Data{Progress: s.data.Progress, Events: append([]any(nil), s.data.Events...)}
	s.dispatchedVersion = s.version
	s.data.Events = nil
	s.mu.Unlock()

	resp, err := s.onHeartbeat(ctx, snapshot)
	if err != nil {
		s.logger.Warn("heartbeat failed", "error", err)
		return
	}
	if resp != nil && s.applyResponse != nil {
		s.applyResponse(resp)
	}
}

// debounceDelay is the [max/2, max] jitter window; max=0 degenerates to no
// delay.
func debounceDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	min := max / 2
	if min <= 0 {
		min = 1
	}
	return jitter.Delay(min, max)
}
