package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/webhook"
)

// ErrorResponse is the flat error body. ID echoes the webhook event id when
// there is one.
type ErrorResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// Error codes
const (
	CodeInvalidSignature = "invalid_signature"
	CodeIPNotAllowed     = "ip_not_allowed"
	CodeInvalidPayload   = "invalid_payload"
	CodePayloadTooLarge  = "payload_too_large"
	CodeHTTPSRequired    = "https_required"
	CodeRateLimited      = "rate_limited"
	CodeUnauthorized     = "unauthorized"
	CodeNotFound         = "not_found"
	CodeInternalError    = "internal_error"
)

// httpError combines an HTTP status code with an error code
type httpError struct {
	status int
	code   string
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.code
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithID(w, "", err)
}

// WriteErrorWithID writes an error response echoing the event id
func WriteErrorWithID(w http.ResponseWriter, id string, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{ID: id, Error: he.code})
}

// Status returns the HTTP status err maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError. Anything unrecognised is
// an internal error with no detail.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return &httpError{http.StatusRequestEntityTooLarge, CodePayloadTooLarge}
	case errors.Is(err, webhook.ErrInvalidPayload):
		return &httpError{http.StatusBadRequest, CodeInvalidPayload}
	case errors.Is(err, model.ErrLicenseNotFound):
		return &httpError{http.StatusNotFound, CodeNotFound}
	default:
		return &httpError{http.StatusInternalServerError, CodeInternalError}
	}
}

// NewInvalidSignatureError creates an invalid signature error
func NewInvalidSignatureError() error {
	return &httpError{http.StatusUnauthorized, CodeInvalidSignature}
}

// NewIPNotAllowedError creates a forbidden origin error
func NewIPNotAllowedError() error {
	return &httpError{http.StatusForbidden, CodeIPNotAllowed}
}

// NewHTTPSRequiredError creates an https required error
func NewHTTPSRequiredError() error {
	return &httpError{http.StatusBadRequest, CodeHTTPSRequired}
}

// NewRateLimitedError creates a rate limited error
func NewRateLimitedError() error {
	return &httpError{http.StatusTooManyRequests, CodeRateLimited}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, CodeUnauthorized}
}

// NewNotFoundError creates a not found error
func NewNotFoundError() error {
	return &httpError{http.StatusNotFound, CodeNotFound}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, CodeInternalError}
}
