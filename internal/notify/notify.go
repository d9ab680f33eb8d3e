// Package notify delivers issued license keys to buyers out of band.
//
// Issuance hands a Message to a Queue and returns immediately. A fixed pool
// of workers drains the queue and calls the configured Sender. Delivery is
// best-effort: failures are logged and counted, never retried here.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/tebex-license-server/internal/redact"
)

// Message is a license key to deliver
type Message struct {
	To         string
	Player     string
	Credential string
	ExpiresAt  time.Time
}

// Sender delivers a single message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrInvalidRecipient is returned for messages without a usable address
var ErrInvalidRecipient = errors.New("invalid recipient address")

// LogSender writes a redacted line per message instead of sending mail.
// Used when no mail provider is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "license email suppressed",
		slog.String("to", redact.Email(msg.To)),
		slog.String("key", redact.Fingerprint(msg.Credential)),
		slog.Time("expires", msg.ExpiresAt),
	)
	return nil
}
