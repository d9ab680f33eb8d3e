package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mcoot/tebex-license-server/internal/model"
)

// ErrInvalidPayload is returned for bodies that are not a usable event envelope
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Decoder parses and bounds-checks event envelopes
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder creates a decoder
func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New()}
}

// Decode parses raw into an event. Unknown fields are ignored; the provider
// sends far more than the server reads.
func (d *Decoder) Decode(raw []byte) (*model.PurchaseEvent, error) {
	var event model.PurchaseEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := d.validate.Struct(&event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &event, nil
}

// EventID pulls just the envelope id out of raw, for echoing in error
// responses when the full event is unusable or never decoded. It returns ""
// when there is no usable id.
func (d *Decoder) EventID(raw []byte) string {
	var envelope struct {
		ID string `json:"id" validate:"max=128"`
	}
	if json.Unmarshal(raw, &envelope) != nil || d.validate.Struct(&envelope) != nil {
		return ""
	}
	return envelope.ID
}
