package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/tebex-license-server/internal/api/response"
)

// RootMessage is the liveness text served at /
const RootMessage = "TheMob License Server is running."

// Pinger reports backing store reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	store  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	response.Text(w, http.StatusOK, RootMessage)
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", slog.String("error", err.Error()))
		response.JSON(w, http.StatusInternalServerError, response.Health{OK: false})
		return
	}
	response.JSON(w, http.StatusOK, response.Health{OK: true})
}
