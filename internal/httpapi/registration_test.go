package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aukilabs/compute-node/internal/dds"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestHandleRegistrationPersistsSecretAndNeverLogsIt(t *testing.T) {
	dds.ClearNodeSecret()
	defer dds.ClearNodeSecret()

	var logs bytes.Buffer
	logger := newTestLogger(&logs)

	body, _ := json.Marshal(map[string]any{
		"id":             "node-1",
		"secret":         "super-secret",
		"organization_id": "org-1",
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/registrations", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handleRegistration(logger)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	stored, ok := dds.ReadNodeSecret()
	if !ok || stored != "super-secret" {
		t.Fatalf("ReadNodeSecret() = (%q, %v), want (\"super-secret\", true)", stored, ok)
	}

	if strings.Contains(logs.String(), "super-secret") {
		t.Fatalf("log output contains the secret: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "node-1") {
		t.Fatalf("expected log output to contain the node id, got %s", logs.String())
	}
}

func TestHandleRegistrationSetsRegisteredStatus(t *testing.T) {
	dds.ClearNodeSecret()
	defer dds.ClearNodeSecret()
	dds.WriteState(dds.RegistrationState{Status: dds.StatusDisconnected})

	var logs bytes.Buffer
	body, _ := json.Marshal(map[string]any{"id": "node-1", "secret": "s"})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/registrations", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handleRegistration(newTestLogger(&logs))(w, req)

	if got := dds.ReadState().Status; got != dds.StatusRegistered {
		t.Fatalf("Status = %q, want %q", got, dds.StatusRegistered)
	}
}

func TestHandleRegistrationRejectsMissingFields(t *testing.T) {
	var logs bytes.Buffer
	body, _ := json.Marshal(map[string]any{"id": "", "secret": ""})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/registrations", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handleRegistration(newTestLogger(&logs))(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestHandleRegistrationRejectsOversizedSecret(t *testing.T) {
	var logs bytes.Buffer
	oversized := strings.Repeat("a", maxSecretBytes+1)
	body, _ := json.Marshal(map[string]any{"id": "node-1", "secret": oversized})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/registrations", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handleRegistration(newTestLogger(&logs))(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleRegistrationRejectsMalformedBody(t *testing.T) {
	var logs bytes.Buffer
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/registrations", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	handleRegistration(newTestLogger(&logs))(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := NewRouter(newTestLogger(&bytes.Buffer{}), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
