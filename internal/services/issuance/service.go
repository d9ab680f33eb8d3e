package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/tebex-license-server/internal/credential"
	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/metrics"
	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/notify"
	"github.com/mcoot/tebex-license-server/internal/redact"
	"github.com/mcoot/tebex-license-server/internal/storage"
)

// Errors
var (
	ErrMint        = errors.New("license could not be minted")
	ErrPersistence = errors.New("license could not be persisted")
)

// Outcome is the terminal state of a handled purchase event
type Outcome string

const (
	// OutcomeHandshake is the provider's endpoint check; echo the id only
	OutcomeHandshake Outcome = "handshake"
	// OutcomeReceived acknowledges an event type the server does not act on
	OutcomeReceived Outcome = "received"
	// OutcomeIgnored acknowledges a purchase of some other product
	OutcomeIgnored Outcome = "ignored"
	// OutcomeIssued means a license was minted and persisted
	OutcomeIssued Outcome = "issued"
)

// Result describes what Handle did with an event
type Result struct {
	Outcome Outcome
	EventID string
	Record  *model.Record

	// Replayed is set when the event had already produced Record
	Replayed bool
}

// Notifier schedules license delivery without blocking
type Notifier interface {
	Enqueue(msg notify.Message) bool
}

// Config holds issuance policy
type Config struct {
	// ProductID is the only package that earns a license
	ProductID int64
}

// Service turns purchase events into persisted licenses
type Service struct {
	storage  storage.Storage
	codec    credential.Codec
	notifier Notifier
	clock    clock.Clock
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a new issuance service
func New(
	storage storage.Storage,
	codec credential.Codec,
	notifier Notifier,
	clock clock.Clock,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage:  storage,
		codec:    codec,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Handle runs an already authenticated event through classification,
// product filtering, idempotency and minting
func (s *Service) Handle(ctx context.Context, event *model.PurchaseEvent) (*Result, error) {
	result, err := s.handle(ctx, event)
	if err != nil {
		s.metrics.WebhookEvent("error")
		return nil, err
	}
	s.metrics.WebhookEvent(string(result.Outcome))
	return result, nil
}

func (s *Service) handle(ctx context.Context, event *model.PurchaseEvent) (*Result, error) {
	logger := s.logger.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))

	switch event.Type {
	case model.EventTypeValidation:
		return &Result{Outcome: OutcomeHandshake, EventID: event.ID}, nil
	case model.EventTypePaymentCompleted:
	default:
		logger.InfoContext(ctx, "webhook event acknowledged without action")
		return &Result{Outcome: OutcomeReceived, EventID: event.ID}, nil
	}

	product, ok := event.FirstProduct()
	if !ok || product.ID == 0 {
		logger.WarnContext(ctx, "purchase event has no product")
		return &Result{Outcome: OutcomeIgnored, EventID: event.ID}, nil
	}
	if product.ID != s.cfg.ProductID {
		logger.InfoContext(ctx, "purchase for other product ignored", slog.Int64("product_id", product.ID))
		return &Result{Outcome: OutcomeIgnored, EventID: event.ID}, nil
	}

	if event.ID != "" {
		existing, err := s.storage.GetLicenseByEvent(ctx, event.ID)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "purchase event replayed, returning existing license",
				slog.String("key", redact.Fingerprint(existing.Credential)))
			return &Result{Outcome: OutcomeIssued, EventID: event.ID, Record: existing, Replayed: true}, nil
		case errors.Is(err, model.ErrLicenseRevoked):
			logger.WarnContext(ctx, "purchase event replayed after its license was revoked")
			return &Result{Outcome: OutcomeIgnored, EventID: event.ID}, nil
		case !errors.Is(err, model.ErrLicenseNotFound):
			logger.ErrorContext(ctx, "replay lookup failed", slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	minted, err := s.codec.Mint(event.PlayerName(), product.ID)
	if err != nil {
		logger.ErrorContext(ctx, "mint failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrMint, err)
	}

	rec := &model.Record{
		Credential: minted.Credential,
		Player:     minted.Claims.Player,
		Email:      event.ContactEmail(),
		ExpiresAt:  minted.Claims.ExpiresAt,
		CreatedAt:  minted.Claims.IssuedAt,
		EventID:    event.ID,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now()
	}

	if err := s.storage.InsertLicense(ctx, rec); err != nil {
		// A concurrent delivery of the same event may have won the insert
		if errors.Is(err, model.ErrLicenseExists) && event.ID != "" {
			existing, lookupErr := s.storage.GetLicenseByEvent(ctx, event.ID)
			switch {
			case lookupErr == nil:
				return &Result{Outcome: OutcomeIssued, EventID: event.ID, Record: existing, Replayed: true}, nil
			case errors.Is(lookupErr, model.ErrLicenseRevoked):
				return &Result{Outcome: OutcomeIgnored, EventID: event.ID}, nil
			}
		}
		logger.ErrorContext(ctx, "license persist failed",
			slog.String("key", redact.Fingerprint(rec.Credential)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.metrics.LicenseIssued(s.codec.Name())
	logger.InfoContext(ctx, "license issued",
		slog.String("key", redact.Fingerprint(rec.Credential)),
		slog.String("codec", s.codec.Name()),
		slog.Time("expires", rec.ExpiresAt),
	)

	if rec.Email != "" && s.notifier != nil {
		s.notifier.Enqueue(notify.Message{
			To:         rec.Email,
			Player:     rec.Player,
			Credential: rec.Credential,
			ExpiresAt:  rec.ExpiresAt,
		})
	}

	return &Result{Outcome: OutcomeIssued, EventID: event.ID, Record: rec}, nil
}
