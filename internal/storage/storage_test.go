package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	nodeerrors "github.com/aukilabs/compute-node/internal/errors"
	"github.com/aukilabs/compute-node/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

func TestTokenHotSwapAffectsNextRequest(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"x"}]}`))
	}))
	defer srv.Close()

	token := NewTokenRef("A")
	client := NewDomainClient(mustURL(t, srv.URL), uuid.New(), srv.Client(), token)
	out := NewDomainOutput(client, "", nil)

	if err := out.PutBytes(context.Background(), "one.txt", []byte("hi")); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	token.Swap("B")
	if err := out.PutBytes(context.Background(), "two.txt", []byte("hi")); err != nil {
		t.Fatalf("put 2: %v", err)
	}

	if len(gotAuth) != 2 || gotAuth[0] != "Bearer A" || gotAuth[1] != "Bearer B" {
		t.Fatalf("unexpected auth headers: %v", gotAuth)
	}
}

func TestIdempotentPutLastWriterWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"same-id"}]}`))
	}))
	defer srv.Close()

	client := NewDomainClient(mustURL(t, srv.URL), uuid.New(), srv.Client(), NewTokenRef("A"))
	out := NewDomainOutput(client, "out", nil)

	if err := out.PutBytes(context.Background(), "ack.txt", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := out.PutBytes(context.Background(), "ack.txt", []byte("second")); err != nil {
		t.Fatal(err)
	}

	uploads := out.UploadedArtifacts()
	if len(uploads) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(uploads))
	}
	if _, ok := uploads["ack.txt"]; !ok {
		t.Fatalf("expected key ack.txt, got %v", uploads)
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	cases := map[int]nodeerrors.StorageErrorKind{
		400: nodeerrors.StorageBadRequest,
		401: nodeerrors.StorageUnauthorized,
		404: nodeerrors.StorageNotFound,
		409: nodeerrors.StorageConflict,
		500: nodeerrors.StorageServer,
	}
	for code, want := range cases {
		code := code
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		client := NewDomainClient(mustURL(t, srv.URL), uuid.New(), srv.Client(), NewTokenRef("A"))
		out := NewDomainOutput(client, "", nil)
		err := out.PutBytes(context.Background(), "x.txt", []byte("x"))
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", code)
		}
		se, ok := err.(*nodeerrors.StorageError)
		if !ok {
			t.Fatalf("status %d: expected *StorageError, got %T", code, err)
		}
		if se.Kind != want {
			t.Fatalf("status %d: got kind %v, want %v", code, se.Kind, want)
		}
	}
}

func TestPutBytesRecordsUploadedBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"x"}]}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	client := NewDomainClient(mustURL(t, srv.URL), uuid.New(), srv.Client(), NewTokenRef("A"))
	out := NewDomainOutput(client, "", metrics)

	payload := []byte("hello world")
	if err := out.PutBytes(context.Background(), "f.txt", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	if got := counterValue(t, reg, "compute_node_storage_bytes_uploaded"); got != float64(len(payload)) {
		t.Fatalf("uploaded bytes = %v, want %d", got, len(payload))
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
