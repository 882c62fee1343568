// Package httpapi serves the node's two-route HTTP surface: a health
// check and the registration endpoint the DDS handshake calls to push
// this node's secret. The handshake itself (SIWE, signed attestations)
// lives outside this package; it only implements the receiving side.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aukilabs/compute-node/internal/httputil"
	"github.com/aukilabs/compute-node/internal/telemetry"
)

// NewRouter builds the node's chi router: GET /health, POST
// /internal/v1/registrations, and (when metrics is non-nil) GET /metrics.
func NewRouter(logger *slog.Logger, metrics *telemetry.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer(logger))
	if metrics != nil {
		r.Use(metrics.Middleware())
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}

	r.Get("/health", handleHealth)
	r.Post("/internal/v1/registrations", handleRegistration(logger))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
