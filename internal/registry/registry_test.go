package registry

import (
	"reflect"
	"testing"

	"github.com/aukilabs/compute-node/internal/runnerapi"
)

type stubRunner struct {
	capability string
}

func (s stubRunner) Capability() string { return s.capability }
func (s stubRunner) Run(ctx runnerapi.TaskCtx) error { return nil }

func TestLookupMiss(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("/nothing/v1"); ok {
		t.Fatal("expected miss on empty registry")
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	a := stubRunner{capability: "/posemesh/a/v1"}
	r.Register(a)

	got, ok := r.Lookup("/posemesh/a/v1")
	if !ok {
		t.Fatal("expected hit after register")
	}
	if got.Capability() != a.Capability() {
		t.Fatalf("capability = %q, want %q", got.Capability(), a.Capability())
	}
}

func TestRegisterSameCapabilityLastWins(t *testing.T) {
	r := New()
	r.Register(stubRunner{capability: "/posemesh/a/v1"})
	second := stubRunner{capability: "/posemesh/a/v1"}
	r.Register(second)

	got, ok := r.Lookup("/posemesh/a/v1")
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, runnerapi.Runner(second)) {
		t.Fatalf("expected second registration to win")
	}
}

func TestCapabilitiesSorted(t *testing.T) {
	r := New()
	r.Register(stubRunner{capability: "/posemesh/c/v1"})
	r.Register(stubRunner{capability: "/posemesh/a/v1"})
	r.Register(stubRunner{capability: "/posemesh/b/v1"})

	want := []string{"/posemesh/a/v1", "/posemesh/b/v1", "/posemesh/c/v1"}
	got := r.Capabilities()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Capabilities() = %v, want %v", got, want)
	}
}

func TestCapabilitiesEmpty(t *testing.T) {
	r := New()
	got := r.Capabilities()
	if len(got) != 0 {
		t.Fatalf("expected empty capability set, got %v", got)
	}
}

func TestConcurrentRegisterAndLookup(t *testing.T) {
	r := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.Register(stubRunner{capability: "/posemesh/x/v1"})
		}
	}()
	for i := 0; i < 100; i++ {
		r.Lookup("/posemesh/x/v1")
		r.Capabilities()
	}
	<-done

	if _, ok := r.Lookup("/posemesh/x/v1"); !ok {
		t.Fatal("expected runner to be registered")
	}
}
