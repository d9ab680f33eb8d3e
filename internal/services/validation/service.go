package validation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/tebex-license-server/internal/credential"
	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/metrics"
	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/redact"
	"github.com/mcoot/tebex-license-server/internal/storage"
)

// Rejection reasons. These are logged and counted but never returned to
// callers, who only ever see an invalid decision.
const (
	ReasonOK           = "ok"
	ReasonMissing      = "missing"
	ReasonTooShort     = "too_short"
	ReasonMalformed    = "malformed"
	ReasonSignature    = "signature"
	ReasonExpired      = "expired"
	ReasonNotFound     = "not_found"
	ReasonStoreError   = "store_error"
	ReasonStoreExpired = "store_expired"
)

// Decision is the outcome of validating a presented license key
type Decision struct {
	Valid     bool
	Player    string
	ExpiresAt time.Time
}

// Service adjudicates license keys against the codec and the store
type Service struct {
	storage storage.Storage
	codec   credential.Codec
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a new validation service
func New(storage storage.Storage, codec credential.Codec, clock clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		codec:   codec,
		clock:   clock,
		metrics: m,
		logger:  logger,
	}
}

// Validate checks key and returns a decision. It never fails: store
// errors and every other rejection yield an invalid decision.
func (s *Service) Validate(ctx context.Context, key string) Decision {
	decision, reason := s.validate(ctx, key)

	s.metrics.Validation(decision.Valid, reason)
	if !decision.Valid {
		s.logger.DebugContext(ctx, "license rejected",
			slog.String("key", redact.Fingerprint(key)),
			slog.String("reason", reason),
		)
	}
	return decision
}

func (s *Service) validate(ctx context.Context, key string) (Decision, string) {
	if key == "" {
		return Decision{}, ReasonMissing
	}
	if len(key) < s.codec.MinLength() {
		return Decision{}, ReasonTooShort
	}

	if _, err := s.codec.Verify(key); err != nil {
		return Decision{}, verifyReason(err)
	}

	rec, err := s.storage.GetLicense(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrLicenseNotFound) {
			return Decision{}, ReasonNotFound
		}
		s.logger.ErrorContext(ctx, "license lookup failed",
			slog.String("key", redact.Fingerprint(key)),
			slog.String("error", err.Error()),
		)
		return Decision{}, ReasonStoreError
	}

	if rec.Expired(s.clock.Now()) {
		return Decision{}, ReasonStoreExpired
	}

	// The store is the revocation authority, so its values win over claims
	return Decision{Valid: true, Player: rec.Player, ExpiresAt: rec.ExpiresAt}, ReasonOK
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, credential.ErrExpired):
		return ReasonExpired
	case errors.Is(err, credential.ErrSignature):
		return ReasonSignature
	default:
		return ReasonMalformed
	}
}
