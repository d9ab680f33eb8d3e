package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Purchase provider event types
const (
	EventTypeValidation       = "validation.webhook"
	EventTypePaymentCompleted = "payment.completed"
)

// TestPaymentMethod is the payment method name the provider uses for sandbox payments
const TestPaymentMethod = "Test Payments"

// PurchaseEvent is the webhook envelope sent by the purchase provider.
// Only the fields the license server reads are modelled.
type PurchaseEvent struct {
	ID      string       `json:"id" validate:"max=128"`
	Type    string       `json:"type" validate:"max=64"`
	Subject EventSubject `json:"subject"`
}

// EventSubject is the payment the event refers to
type EventSubject struct {
	Customer      Customer       `json:"customer"`
	Products      []Product      `json:"products" validate:"max=100,dive"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
}

// Customer identifies the buyer
type Customer struct {
	Username *Username `json:"username,omitempty"`
	Email    string    `json:"email,omitempty" validate:"max=254"`
}

// Username wraps the in-game username the buyer entered at checkout
type Username struct {
	Username string `json:"username" validate:"max=64"`
}

// Product is a purchased package
type Product struct {
	ID int64 `json:"id"`
}

// UnmarshalJSON reads the package id. Only an integral JSON number names a
// package; strings, fractions and other shapes decode as 0, which matches
// no package, so such events are acknowledged and ignored rather than
// rejected.
func (p *Product) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	p.ID = 0
	if raw := bytes.TrimSpace(fields.ID); len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			p.ID = n
		}
	}
	return nil
}

// PaymentMethod describes how the payment was made
type PaymentMethod struct {
	Name string `json:"name" validate:"max=64"`
}

// IsTestPayment reports whether the event is a provider sandbox payment
func (e *PurchaseEvent) IsTestPayment() bool {
	return e.Subject.PaymentMethod != nil && e.Subject.PaymentMethod.Name == TestPaymentMethod
}

// FirstProduct returns the first purchased product, if any
func (e *PurchaseEvent) FirstProduct() (Product, bool) {
	if len(e.Subject.Products) == 0 {
		return Product{}, false
	}
	return e.Subject.Products[0], true
}

// PlayerName returns the buyer's username or UnknownPlayer
func (e *PurchaseEvent) PlayerName() string {
	if u := e.Subject.Customer.Username; u != nil && u.Username != "" {
		return u.Username
	}
	return UnknownPlayer
}

// ContactEmail returns the buyer's email address, which may be empty
func (e *PurchaseEvent) ContactEmail() string {
	return e.Subject.Customer.Email
}
