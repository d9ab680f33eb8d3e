package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/tebex-license-server/internal/api/apierr"
	"github.com/mcoot/tebex-license-server/internal/api/response"
	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/redact"
	"github.com/mcoot/tebex-license-server/internal/services/validation"
	"github.com/mcoot/tebex-license-server/internal/storage"
)

// LicenseHandler handles license validation and revocation
type LicenseHandler struct {
	validation *validation.Service
	storage    storage.Storage
	logger     *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(validationService *validation.Service, store storage.Storage, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		validation: validationService,
		storage:    store,
		logger:     logger,
	}
}

// Validate handles GET /validate?key=
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	decision := h.validation.Validate(r.Context(), r.URL.Query().Get("key"))
	response.JSON(w, http.StatusOK, response.ValidationFromDecision(decision))
}

// Revoke handles DELETE /admin/licenses/{key}
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := h.storage.DeleteLicense(r.Context(), key); err != nil {
		if !errors.Is(err, model.ErrLicenseNotFound) {
			h.logger.ErrorContext(r.Context(), "license revoke failed",
				slog.String("key", redact.Fingerprint(key)),
				slog.String("error", err.Error()),
			)
		}
		apierr.WriteError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "license revoked", slog.String("key", redact.Fingerprint(key)))
	response.JSON(w, http.StatusOK, response.Revoked{Revoked: true})
}
