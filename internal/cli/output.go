package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		o.printHealthResult(v)
	case ValidateResult:
		o.printValidateResult(v)
	case InspectResult:
		o.printInspectResult(v)
	case RevokeResult:
		fmt.Println("License revoked")
	case WebhookResult:
		o.printWebhookResult(v)
	case SecretResult:
		fmt.Println(v.Secret)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	OK bool `json:"ok"`
}

// ValidateResult response type
type ValidateResult struct {
	Valid   bool   `json:"valid"`
	Player  string `json:"player,omitempty"`
	Expires int64  `json:"expires,omitempty"`
}

// InspectResult is a locally decoded license key
type InspectResult struct {
	ID        string `json:"id"`
	Player    string `json:"player"`
	Product   int64  `json:"product"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
	Verified  bool   `json:"verified"`
}

// RevokeResult response type
type RevokeResult struct {
	Revoked bool `json:"revoked"`
}

// WebhookResult covers every webhook acknowledgement shape
type WebhookResult struct {
	ID       string `json:"id"`
	Success  bool   `json:"success,omitempty"`
	Ignored  bool   `json:"ignored,omitempty"`
	Received bool   `json:"received,omitempty"`
	License  string `json:"license,omitempty"`
	Player   string `json:"player,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
}

// SecretResult is a generated secret
type SecretResult struct {
	Secret string `json:"secret"`
}

func (o *Output) printHealthResult(h HealthResult) {
	status := "ok"
	if !h.OK {
		status = "unhealthy"
	}
	fmt.Printf("Status: %s\n", status)
}

func (o *Output) printValidateResult(v ValidateResult) {
	if !v.Valid {
		fmt.Println("Valid: no")
		return
	}
	fmt.Println("Valid: yes")
	fmt.Printf("Player: %s\n", v.Player)
	fmt.Printf("Expires: %s\n", time.UnixMilli(v.Expires).UTC().Format(time.RFC3339))
}

func (o *Output) printInspectResult(r InspectResult) {
	verified := "no"
	if r.Verified {
		verified = "yes"
	}
	fmt.Printf("ID: %s\n", r.ID)
	fmt.Printf("Player: %s\n", r.Player)
	fmt.Printf("Product: %d\n", r.Product)
	fmt.Printf("Issued: %s\n", r.IssuedAt)
	fmt.Printf("Expires: %s\n", r.ExpiresAt)
	fmt.Printf("Verified: %s\n", verified)
}

func (o *Output) printWebhookResult(r WebhookResult) {
	fmt.Printf("Event: %s\n", r.ID)
	switch {
	case r.Success:
		fmt.Println("Outcome: issued")
		fmt.Printf("Player: %s\n", r.Player)
		fmt.Printf("License: %s\n", r.License)
		fmt.Printf("Expires: %s\n", time.UnixMilli(r.Expires).UTC().Format(time.RFC3339))
	case r.Ignored:
		fmt.Println("Outcome: ignored")
	case r.Received:
		fmt.Println("Outcome: received")
	default:
		fmt.Println("Outcome: handshake")
	}
}
