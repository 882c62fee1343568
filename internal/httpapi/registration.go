package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aukilabs/compute-node/internal/dds"
	"github.com/aukilabs/compute-node/internal/httputil"
)

const maxSecretBytes = 4096

type registrationRequest struct {
	ID                   string   `json:"id"`
	Secret               string   `json:"secret"`
	OrganizationID       *string  `json:"organization_id,omitempty"`
	LighthousesInDomains []string `json:"lighthouses_in_domains,omitempty"`
	Domains              []string `json:"domains,omitempty"`
}

// handleRegistration validates and persists the pushed node secret. It
// logs id/organization_id/len(secret) but never the secret itself.
func handleRegistration(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, http.StatusUnprocessableEntity, "invalid_body", "malformed registration request")
			return
		}

		if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Secret) == "" {
			httputil.WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "id and secret are required")
			return
		}
		if len(req.Secret) > maxSecretBytes {
			httputil.WriteError(w, http.StatusForbidden, "secret_too_large", "secret exceeds maximum length")
			return
		}

		org := ""
		if req.OrganizationID != nil {
			org = *req.OrganizationID
		}
		logger.Info("registration received", "id", req.ID, "organization_id", org, "secret_len", len(req.Secret))

		dds.WriteNodeSecret(req.Secret)
		dds.SetStatus(dds.StatusRegistered)

		if readBack, ok := dds.ReadNodeSecret(); !ok || readBack != req.Secret {
			httputil.WriteError(w, http.StatusConflict, "persist_failed", "could not confirm persisted secret")
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
