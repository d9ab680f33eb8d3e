// Package resend sends license emails through the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mcoot/tebex-license-server/internal/notify"
)

// DefaultBaseURL is the Resend API endpoint
const DefaultBaseURL = "https://api.resend.com"

//go:embed templates/license.html
var templateFS embed.FS

var licenseTemplate = template.Must(template.ParseFS(templateFS, "templates/license.html"))

// Config holds the Resend client settings
type Config struct {
	APIKey  string
	From    string
	Product string
	BaseURL string
	Retries int
	WaitMin time.Duration
	WaitMax time.Duration
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for the Resend client
func DefaultConfig() Config {
	return Config{
		From:    "TheMob Store <noreply@resend.dev>",
		Product: "TheMob",
		BaseURL: DefaultBaseURL,
		Retries: 2,
		WaitMin: 1 * time.Second,
		WaitMax: 5 * time.Second,
		Timeout: 10 * time.Second,
	}
}

// Sender implements notify.Sender against the Resend API
type Sender struct {
	cfg    Config
	client *retryablehttp.Client
}

// Ensure Sender implements notify.Sender
var _ notify.Sender = (*Sender)(nil)

// New creates a Resend sender
func New(cfg Config) (*Sender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	client.RetryWaitMin = cfg.WaitMin
	client.RetryWaitMax = cfg.WaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	return &Sender{cfg: cfg, client: client}, nil
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type templateData struct {
	Product    string
	Player     string
	Credential string
	Expires    string
}

// Render produces the HTML body for msg
func (s *Sender) Render(msg notify.Message) (string, error) {
	var buf bytes.Buffer
	err := licenseTemplate.Execute(&buf, templateData{
		Product:    s.cfg.Product,
		Player:     msg.Player,
		Credential: msg.Credential,
		Expires:    msg.ExpiresAt.UTC().Format(http.TimeFormat),
	})
	if err != nil {
		return "", fmt.Errorf("render license email: %w", err)
	}
	return buf.String(), nil
}

func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	html, err := s.Render(msg)
	if err != nil {
		return err
	}

	body, err := json.Marshal(emailRequest{
		From:    s.cfg.From,
		To:      []string{msg.To},
		Subject: fmt.Sprintf("Your %s License Key", s.cfg.Product),
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/emails", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
