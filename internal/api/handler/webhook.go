package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/tebex-license-server/internal/api/apierr"
	"github.com/mcoot/tebex-license-server/internal/api/response"
	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/services/issuance"
	"github.com/mcoot/tebex-license-server/internal/webhook"
)

// WebhookHandler handles purchase provider webhooks
type WebhookHandler struct {
	guard             *webhook.Guard
	decoder           *webhook.Decoder
	issuance          *issuance.Service
	allowTestPayments bool
	logger            *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	guard *webhook.Guard,
	decoder *webhook.Decoder,
	issuanceService *issuance.Service,
	allowTestPayments bool,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		guard:             guard,
		decoder:           decoder,
		issuance:          issuanceService,
		allowTestPayments: allowTestPayments,
		logger:            logger,
	}
}

// Handle handles POST /tebex and POST /tebex/webhook
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Read (bounded by MaxBody) before the origin check so a rejection can
	// still echo the event id.
	raw, readErr := io.ReadAll(r.Body)

	if h.guard.AllowListEnabled() {
		if ip := h.guard.ClientIP(r); !h.guard.Allowed(ip) {
			id := h.decoder.EventID(raw)
			h.logger.WarnContext(ctx, "webhook from address not on allow-list",
				slog.String("client_ip", ip), slog.String("event_id", id))
			apierr.WriteErrorWithID(w, id, apierr.NewIPNotAllowedError())
			return
		}
	}

	if readErr != nil {
		var maxBytes *http.MaxBytesError
		if !errors.As(readErr, &maxBytes) {
			readErr = errors.Join(webhook.ErrInvalidPayload, readErr)
		}
		apierr.WriteError(w, readErr)
		return
	}

	// The envelope is parsed before authentication only to find the event id
	// and the sandbox flag; nothing acts on it until the signature passes.
	event, decodeErr := h.decoder.Decode(raw)
	id := h.decoder.EventID(raw)

	if h.bypassSignature(event) {
		h.logger.InfoContext(ctx, "test payment, signature check skipped", slog.String("event_id", id))
	} else if !h.guard.VerifySignature(raw, r.Header.Get(webhook.SignatureHeader)) {
		h.logger.WarnContext(ctx, "webhook signature rejected", slog.String("event_id", id))
		apierr.WriteErrorWithID(w, id, apierr.NewInvalidSignatureError())
		return
	}

	if decodeErr != nil {
		h.logger.WarnContext(ctx, "webhook payload rejected", slog.String("error", decodeErr.Error()))
		apierr.WriteError(w, decodeErr)
		return
	}

	result, err := h.issuance.Handle(ctx, event)
	if err != nil {
		apierr.WriteErrorWithID(w, id, err)
		return
	}

	response.JSON(w, http.StatusOK, response.WebhookFromResult(result))
}

func (h *WebhookHandler) bypassSignature(event *model.PurchaseEvent) bool {
	return h.allowTestPayments && event != nil && event.IsTestPayment()
}
