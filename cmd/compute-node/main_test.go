package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aukilabs/compute-node/internal/dms"
	"github.com/aukilabs/compute-node/internal/telemetry"
	"github.com/aukilabs/compute-node/internal/tokenmanager"
)

func TestMeteredLeaserRefusesLeaseWhileTokenManagerUnhealthy(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := dms.New(base, srv.Client(), func() string { return "t" })

	// Bundle already past its rotation window and a reauth that always
	// fails: ReauthMaxRetries 0 falls back to the default of 3, each retry
	// waits at most 1ms, so the first Run tick exhausts retries almost
	// immediately and flips Healthy() to false.
	tm := tokenmanager.New(
		tokenmanager.Bundle{
			Token:     "t0",
			IssuedAt:  time.Now().Add(-time.Hour),
			ExpiresAt: time.Now().Add(-time.Minute),
		},
		tokenmanager.Config{SafetyRatio: 0.75, ReauthMaxRetries: 0, ReauthJitterMs: time.Millisecond},
		func(ctx context.Context) (tokenmanager.Bundle, error) {
			return tokenmanager.Bundle{}, errors.New("dds unreachable")
		},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tm.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for tm.Healthy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tm.Healthy() {
		t.Fatal("expected token manager to become unhealthy after exhausting retries")
	}

	leaser := &meteredLeaser{inner: client, metrics: telemetry.NewMetrics(prometheus.NewRegistry()), tokens: tm}

	lease, err := leaser.LeaseByCapability(context.Background(), "/dummy/v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease != nil {
		t.Fatalf("expected nil lease while unhealthy, got %v", lease)
	}
	if called {
		t.Fatal("expected DMS not to be called while token manager is unhealthy")
	}
}
