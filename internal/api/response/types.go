package response

import (
	"time"

	"github.com/mcoot/tebex-license-server/internal/services/issuance"
	"github.com/mcoot/tebex-license-server/internal/services/validation"
)

// Health is the /health body
type Health struct {
	OK bool `json:"ok"`
}

// Handshake echoes the provider's validation event id
type Handshake struct {
	ID string `json:"id"`
}

// Ignored acknowledges a purchase the server does not license
type Ignored struct {
	ID      string `json:"id"`
	Ignored bool   `json:"ignored"`
}

// Received acknowledges an event type the server does not act on
type Received struct {
	ID       string `json:"id"`
	Received bool   `json:"received"`
}

// Issued carries a freshly minted license back to the provider
type Issued struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	License string `json:"license"`
	Player  string `json:"player"`
	Expires int64  `json:"expires"` // epoch milliseconds
}

// WebhookFromResult builds the body for an issuance result
func WebhookFromResult(r *issuance.Result) any {
	switch r.Outcome {
	case issuance.OutcomeHandshake:
		return Handshake{ID: r.EventID}
	case issuance.OutcomeIgnored:
		return Ignored{ID: r.EventID, Ignored: true}
	case issuance.OutcomeIssued:
		return Issued{
			ID:      r.EventID,
			Success: true,
			License: r.Record.Credential,
			Player:  r.Record.Player,
			Expires: Millis(r.Record.ExpiresAt),
		}
	default:
		return Received{ID: r.EventID, Received: true}
	}
}

// Validation is the /validate body. Invalid decisions carry no detail.
type Validation struct {
	Valid   bool   `json:"valid"`
	Player  string `json:"player,omitempty"`
	Expires int64  `json:"expires,omitempty"` // epoch milliseconds
}

// ValidationFromDecision converts a validation decision
func ValidationFromDecision(d validation.Decision) Validation {
	if !d.Valid {
		return Validation{}
	}
	return Validation{
		Valid:   true,
		Player:  d.Player,
		Expires: Millis(d.ExpiresAt),
	}
}

// Revoked confirms an admin revocation
type Revoked struct {
	Revoked bool `json:"revoked"`
}

// Millis converts t to epoch milliseconds
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
