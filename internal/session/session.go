// Package session implements the per-task orchestrator: it binds a leased
// task to a runner invocation, a heartbeat loop, a lease-expiry watchdog,
// and a rotating storage credential, then finalises via complete/fail. The
// three goroutines run under one errgroup.Group; the heartbeat loop and
// the watchdog are stopped when the runner invocation returns, and the
// terminal DMS call is sent only once all three have returned.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aukilabs/compute-node/internal/dms"
	"github.com/aukilabs/compute-node/internal/heartbeat"
	"github.com/aukilabs/compute-node/internal/registry"
	"github.com/aukilabs/compute-node/internal/runnerapi"
	"github.com/aukilabs/compute-node/internal/storage"
	"github.com/aukilabs/compute-node/internal/telemetry"
)

// leaseWatchdogInterval is how often the watchdog goroutine re-checks the
// last lease deadline it was told about, independent of whether another
// heartbeat response ever arrives to re-trigger the check itself.
const leaseWatchdogInterval = 2 * time.Second

// DMS is the subset of the DMS client a Session calls directly.
type DMS interface {
	Heartbeat(ctx context.Context, taskID uuid.UUID, req dms.HeartbeatRequest) (*runnerapi.LeaseEnvelope, error)
	Complete(ctx context.Context, taskID uuid.UUID, req dms.CompleteTaskRequest) error
	Fail(ctx context.Context, taskID uuid.UUID, req dms.FailTaskRequest) error
}

// Config holds the per-task tunables a Session needs from NodeConfig.
type Config struct {
	HeartbeatJitter time.Duration
	HTTPClient      *http.Client
	TempDirRoot     string
}

// Session is the shared dependency holder a Poller hands leases to; Run
// constructs a fresh TokenRef, storage ports, and heartbeat scheduler for
// each lease, so concurrent calls never share per-task state.
type Session struct {
	dmsClient DMS
	registry  *registry.Registry
	cfg       Config
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	activeTasks int64
}

func New(dmsClient DMS, reg *registry.Registry, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TempDirRoot == "" {
		cfg.TempDirRoot = os.TempDir()
	}
	return &Session{dmsClient: dmsClient, registry: reg, cfg: cfg, logger: logger, metrics: metrics}
}

// Run drives one leased task from hand-off to a terminal DMS call. It
// blocks; the poller's SessionStarter is expected to invoke it in its own
// goroutine.
func (s *Session) Run(ctx context.Context, lease runnerapi.LeaseEnvelope) {
	task := lease.Task
	taskID := task.ID
	logger := telemetry.TaskLogger(s.logger, taskID, task.JobID, task.Capability, lease.DomainID)

	if lease.DomainID == nil {
		logger.Warn("failing task without running", "reason", "lease missing domain_id")
		s.fail(ctx, taskID, "lease missing domain_id", nil, logger)
		return
	}
	if lease.DomainServerURL == nil || *lease.DomainServerURL == "" {
		logger.Warn("failing task without running", "reason", "lease missing domain_server_url")
		s.fail(ctx, taskID, "lease missing domain_server_url", nil, logger)
		return
	}

	runner, ok := s.registry.Lookup(task.Capability)
	if !ok {
		reason := fmt.Sprintf("no runner for %s", task.Capability)
		logger.Warn("failing task without running", "reason", reason)
		s.fail(ctx, taskID, reason, nil, logger)
		return
	}

	base, err := url.Parse(*lease.DomainServerURL)
	if err != nil {
		reason := fmt.Sprintf("invalid domain_server_url: %s", err)
		logger.Warn("failing task without running", "reason", reason)
		s.fail(ctx, taskID, reason, nil, logger)
		return
	}

	outputsPrefix := ""
	if task.OutputsPrefix != nil {
		outputsPrefix = *task.OutputsPrefix
	} else {
		logger.Debug("no outputs_prefix on lease, uploads will use the empty prefix")
	}

	accessToken := ""
	if lease.AccessToken != nil {
		accessToken = *lease.AccessToken
	}
	tokenRef := storage.NewTokenRef(accessToken)

	tempDir, err := os.MkdirTemp(s.cfg.TempDirRoot, "task-"+taskID.String()+"-")
	if err != nil {
		reason := fmt.Sprintf("create temp dir: %s", err)
		logger.Warn("failing task without running", "reason", reason)
		s.fail(ctx, taskID, reason, nil, logger)
		return
	}
	defer os.RemoveAll(tempDir)

	domainClient := storage.NewDomainClient(base, *lease.DomainID, s.cfg.HTTPClient, tokenRef)
	input := storage.NewDomainInput(domainClient, tempDir, s.metrics)
	output := storage.NewDomainOutput(domainClient, outputsPrefix, s.metrics)

	active := atomic.AddInt64(&s.activeTasks, 1)
	if s.metrics != nil {
		s.metrics.SetActiveTasks(int(active))
	}
	defer func() {
		active := atomic.AddInt64(&s.activeTasks, -1)
		if s.metrics != nil {
			s.metrics.SetActiveTasks(int(active))
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	abort := &abortState{cancel: cancelRun}
	if lease.LeaseExpiresAt != nil {
		abort.setDeadline(*lease.LeaseExpiresAt)
	}
	control := &controlPlane{}

	onHeartbeat := func(hctx context.Context, data heartbeat.Data) (*runnerapi.LeaseEnvelope, error) {
		return s.dmsClient.Heartbeat(hctx, taskID, dms.HeartbeatRequest{Progress: data.Progress, Events: data.Events})
	}
	applyResponse := func(env *runnerapi.LeaseEnvelope) {
		if env.AccessToken != nil && *env.AccessToken != tokenRef.Get() {
			tokenRef.Swap(*env.AccessToken)
			if s.metrics != nil {
				s.metrics.IncTokenRotateCount()
			}
		}
		if env.Cancel {
			control.cancelled.Store(true)
		}
		if env.LeaseExpiresAt != nil {
			abort.setDeadline(*env.LeaseExpiresAt)
			if env.LeaseExpiresAt.Before(time.Now()) {
				logger.Warn("lease expired, aborting runner")
				abort.trigger("lease expired")
			}
		}
	}

	scheduler := heartbeat.New(s.cfg.HeartbeatJitter, onHeartbeat, applyResponse, logger)
	control.scheduler = scheduler

	// workCtx scopes the heartbeat loop and the lease-expiry watchdog to
	// the runner's actual lifetime: cancelWork fires as soon as the
	// runner goroutine returns, whether it succeeded, failed, or was
	// aborted via runCtx. Without that explicit signal neither loop would
	// ever see ctx.Done() on a clean finish and g.Wait() would hang.
	workCtx, cancelWork := context.WithCancel(runCtx)
	defer cancelWork()

	var g errgroup.Group
	g.Go(func() error {
		scheduler.Run(workCtx)
		return nil
	})
	g.Go(func() error {
		return watchLeaseExpiry(workCtx, abort, logger)
	})

	taskCtx := runnerapi.TaskCtx{
		Context: workCtx,
		Lease:   lease,
		Input:   input,
		Output:  output,
		Control: control,
		Token:   tokenRef.Get,
	}

	var runErr error
	g.Go(func() error {
		defer cancelWork()
		defer scheduler.Stop()
		start := time.Now()
		runErr = runner.Run(taskCtx)
		if s.metrics != nil {
			s.metrics.ObserveRunnerLatency(task.Capability, time.Since(start))
		}
		return runErr
	})

	_ = g.Wait()

	if reason := abort.Reason(); reason != "" {
		s.fail(ctx, taskID, reason, nil, logger)
		return
	}
	if runErr != nil {
		s.fail(ctx, taskID, runErr.Error(), map[string]any{}, logger)
		return
	}
	s.complete(ctx, taskID, output.UploadedArtifacts(), logger)
}

func (s *Session) fail(ctx context.Context, taskID uuid.UUID, reason string, details map[string]any, logger *slog.Logger) {
	if err := s.dmsClient.Fail(ctx, taskID, dms.FailTaskRequest{Reason: reason, Details: details}); err != nil {
		logger.Warn("fail call failed, session ending anyway", "error", err)
	}
}

func (s *Session) complete(ctx context.Context, taskID uuid.UUID, uploads map[string]runnerapi.UploadedArtifact, logger *slog.Logger) {
	outputsIndex := make(map[string]string, len(uploads))
	for relPath, artifact := range uploads {
		outputsIndex[relPath] = artifact.ID
	}
	if err := s.dmsClient.Complete(ctx, taskID, dms.CompleteTaskRequest{OutputsIndex: outputsIndex}); err != nil {
		logger.Warn("complete call failed, session ending anyway", "error", err)
	}
}

// controlPlane is the ControlPlane a runner sees: progress/log_event route
// into the heartbeat scheduler's watch slot, is_cancelled reflects the
// latest heartbeat response.
type controlPlane struct {
	scheduler *heartbeat.Scheduler
	cancelled atomic.Bool
}

func (c *controlPlane) IsCancelled() bool { return c.cancelled.Load() }
func (c *controlPlane) Progress(v any)    { c.scheduler.Progress(v) }
func (c *controlPlane) LogEvent(v any)    { c.scheduler.LogEvent(v) }

// abortState forces the runner's context to cancel, at most once, when the
// heartbeat observes an expired lease. Distinct from controlPlane.cancelled:
// that flag is advisory (the runner is expected to notice it on its own
// cadence); an abort forcibly tears down runCtx.
type abortState struct {
	mu       sync.Mutex
	reason   string
	deadline time.Time
	cancel   context.CancelFunc
}

func (a *abortState) trigger(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reason == "" {
		a.reason = reason
		a.cancel()
	}
}

func (a *abortState) Reason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

func (a *abortState) setDeadline(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deadline = t
}

func (a *abortState) expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.deadline.IsZero() && time.Now().After(a.deadline)
}

// watchLeaseExpiry polls the deadline applyResponse last recorded and
// aborts the run if it passes, independently of whether another heartbeat
// response ever arrives to re-check it (a stalled heartbeat path, e.g. the
// DMS being unreachable, must not let an expired lease run forever).
func watchLeaseExpiry(ctx context.Context, abort *abortState, logger *slog.Logger) error {
	ticker := time.NewTicker(leaseWatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if abort.expired() {
				logger.Warn("lease expired, aborting runner")
				abort.trigger("lease expired")
				return nil
			}
		}
	}
}
