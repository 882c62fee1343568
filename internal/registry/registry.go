// Package registry maps capability strings to the runner that implements
// them. Registration is append-only and happens once before the engine
// starts; lookup is the engine's dispatch step for every leased task.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aukilabs/compute-node/internal/runnerapi"
)

// Registry is a capability -> runner map, safe for concurrent lookup after
// construction.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]runnerapi.Runner
}

func New() *Registry {
	return &Registry{runners: make(map[string]runnerapi.Runner)}
}

// Register adds a runner under its own Capability(). Registering two
// runners for the same capability is a programmer error (last one wins,
// but it indicates a misconfigured node).
func (r *Registry) Register(runner runnerapi.Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[runner.Capability()] = runner
}

// Lookup resolves the runner for a capability string. A miss is fatal for
// the task that requested it, not for the node.
func (r *Registry) Lookup(capability string) (runnerapi.Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[capability]
	return runner, ok
}

// Capabilities returns the advertised capability set, sorted for
// deterministic poller loop ordering.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]string, 0, len(r.runners))
	for c := range r.runners {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry(%v)", r.Capabilities())
}
