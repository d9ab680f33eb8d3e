package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/tebex-license-server/internal/api/apierr"
	"github.com/mcoot/tebex-license-server/internal/middleware"
)

// Recovery creates panic recovery middleware for the API.
// Panics become a bare internal_error JSON body.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler)
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}
