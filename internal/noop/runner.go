// Package noop implements the ENABLE_NOOP test-harness runner: a Runner
// that downloads its inputs, sleeps NOOP_SLEEP_SECS, uploads a minimal
// artifact, and reports one progress entry, so an operator can exercise
// the full lease/heartbeat/storage path without a real workload.
package noop

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aukilabs/compute-node/internal/runnerapi"
)

// Capability constants mirror the default/local/global mock capabilities; a
// node can register the noop runner under any subset of them to exercise
// different dispatch paths in an integration run.
const (
	CapabilityDefault = "/posemesh/mock/v1"
	CapabilityLocal   = "/posemesh/mock/local/v1"
	CapabilityGlobal  = "/posemesh/mock/global/v1"
)

// Runner is the noop test-harness worker.
type Runner struct {
	capability string
	sleep      time.Duration
}

// New builds a noop Runner advertising capability, sleeping sleep before
// reporting success.
func New(capability string, sleep time.Duration) *Runner {
	return &Runner{capability: capability, sleep: sleep}
}

func (r *Runner) Capability() string { return r.capability }

func (r *Runner) Run(ctx runnerapi.TaskCtx) error {
	for _, cid := range ctx.Lease.Task.InputsCIDs {
		if _, err := ctx.Input.GetBytesByCID(ctx.Context, cid); err != nil {
			return fmt.Errorf("noop: download %s: %w", cid, err)
		}
	}

	if r.sleep > 0 {
		timer := time.NewTimer(r.sleep)
		defer timer.Stop()
		select {
		case <-ctx.Context.Done():
			return ctx.Context.Err()
		case <-timer.C:
		}
	}

	// The ArtifactSink applies outputs_prefix itself; this rel_path is
	// relative to that prefix, not an absolute logical path.
	body, _ := json.Marshal(map[string]string{"status": "ok"})
	if err := ctx.Output.PutBytes(ctx.Context, "mock-output.json", body); err != nil {
		return fmt.Errorf("noop: upload: %w", err)
	}

	ctx.Control.Progress(map[string]string{"capability": r.capability})
	return nil
}
