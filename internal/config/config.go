// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mcoot/tebex-license-server/internal/credential"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Mail drivers
const (
	MailLog    = "log"
	MailResend = "resend"
)

// minSecretLength is the shortest accepted signing or webhook secret
const minSecretLength = 16

// placeholders are shipped example values that must never reach production
var placeholders = []string{
	"CHANGE_ME_NOW_IN_PRODUCTION",
	"CHANGE_ME",
	"changeme",
	"secret",
	"your-secret-here",
	"your_tebex_secret",
	"your_license_secret",
}

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete server configuration. Field names map directly to
// environment variables; there is no prefix.
type Config struct {
	Port     int    `envconfig:"PORT" default:"3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	StorageType string `envconfig:"STORAGE_TYPE" default:"redis"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	LicenseSecret   string        `envconfig:"LICENSE_SECRET"`
	LicenseCodec    string        `envconfig:"LICENSE_CODEC" default:"signed"`
	LicenseLifetime time.Duration `envconfig:"LICENSE_LIFETIME" default:"720h"`

	TebexSecret            string   `envconfig:"TEBEX_SECRET"`
	TebexPackageID         int64    `envconfig:"TEBEX_PACKAGE_ID" default:"7156613"`
	TebexIPWhitelist       []string `envconfig:"TEBEX_IP_WHITELIST"`
	TebexAllowTestPayments bool     `envconfig:"TEBEX_ALLOW_TEST_PAYMENTS" default:"true"`

	// TrustProxy is how many reverse proxies sit in front of the server.
	TrustProxy   ProxyHops `envconfig:"TRUST_PROXY" default:"1"`
	RequireHTTPS bool      `envconfig:"REQUIRE_HTTPS" default:"true"`

	MailDriver   string `envconfig:"MAIL_DRIVER" default:"log"`
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"TheMob Store <noreply@resend.dev>"`

	NotifyWorkers   int `envconfig:"NOTIFY_WORKERS" default:"2"`
	NotifyQueueSize int `envconfig:"NOTIFY_QUEUE_SIZE" default:"100"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`
}

// ProxyHops is a trusted proxy count. It also accepts true (one hop) and
// false (none) for compatibility with boolean deployments.
type ProxyHops int

// Decode implements envconfig.Decoder
func (h *ProxyHops) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		*h = 1
		return nil
	case "false", "":
		*h = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return fmt.Errorf("TRUST_PROXY %q: want a hop count, true or false", value)
	}
	*h = ProxyHops(n)
	return nil
}

// Load reads the environment and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.TebexIPWhitelist = trimList(cfg.TebexIPWhitelist)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate refuses unset or placeholder secrets and unknown selectors
func (c *Config) Validate() error {
	var errs []error

	if c.LicenseCodec == credential.KindSigned {
		if err := checkSecret("LICENSE_SECRET", c.LicenseSecret); err != nil {
			errs = append(errs, err)
		}
	} else if c.LicenseCodec != credential.KindOpaque {
		errs = append(errs, fmt.Errorf("LICENSE_CODEC must be %q or %q", credential.KindSigned, credential.KindOpaque))
	}
	if err := checkSecret("TEBEX_SECRET", c.TebexSecret); err != nil {
		errs = append(errs, err)
	}
	if c.AdminToken != "" {
		if err := checkSecret("ADMIN_TOKEN", c.AdminToken); err != nil {
			errs = append(errs, err)
		}
	}

	if c.LicenseLifetime <= 0 {
		errs = append(errs, errors.New("LICENSE_LIFETIME must be positive"))
	}
	if c.TebexPackageID <= 0 {
		errs = append(errs, errors.New("TEBEX_PACKAGE_ID must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("PORT must be between 1 and 65535"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.StorageType {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL required when STORAGE_TYPE=redis"))
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL required when STORAGE_TYPE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_TYPE must be one of %s, %s, %s", StorageMemory, StorageRedis, StoragePostgres))
	}

	switch c.MailDriver {
	case MailLog:
	case MailResend:
		if err := checkSecret("RESEND_API_KEY", c.ResendAPIKey); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER must be %q or %q", MailLog, MailResend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// SlogLevel parses LOG_LEVEL
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// IsPlaceholder reports whether v is one of the known example values
func IsPlaceholder(v string) bool {
	for _, p := range placeholders {
		if strings.EqualFold(strings.TrimSpace(v), p) {
			return true
		}
	}
	return false
}

func checkSecret(name, v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%s must be set", name)
	case IsPlaceholder(v):
		return fmt.Errorf("%s is still set to a placeholder value", name)
	case len(v) < minSecretLength:
		return fmt.Errorf("%s must be at least %d characters", name, minSecretLength)
	}
	return nil
}

func trimList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
