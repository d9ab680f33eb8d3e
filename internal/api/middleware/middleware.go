package middleware

import (
	"net/http"

	"github.com/mcoot/tebex-license-server/internal/api/apierr"
)

// RejectHTTPS writes the https_required error
func RejectHTTPS(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewHTTPSRequiredError())
}

// RejectRateLimited writes the rate_limited error
func RejectRateLimited(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewRateLimitedError())
}
