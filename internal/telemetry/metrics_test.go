package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAddBytesUploadedAndDownloaded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddBytesUploaded(128)
	m.AddBytesUploaded(32)
	m.AddBytesDownloaded(64)

	if got := testutil.ToFloat64(m.bytesUploaded); got != 160 {
		t.Fatalf("bytesUploaded = %v, want 160", got)
	}
	if got := testutil.ToFloat64(m.bytesDownloaded); got != 64 {
		t.Fatalf("bytesDownloaded = %v, want 64", got)
	}
}

func TestIncTokenRotateCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncTokenRotateCount()
	m.IncTokenRotateCount()

	if got := testutil.ToFloat64(m.tokenRotateCount); got != 2 {
		t.Fatalf("tokenRotateCount = %v, want 2", got)
	}
}
