package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config is what licensectl needs to reach a server and, for the local
// commands, the same secrets the server holds.
type Config struct {
	ServerURL string
	Token     string
	TokenFile string

	// Read from the server's own variable names so a sourced server .env
	// is enough for webhook send and inspect.
	WebhookSecret string
	LicenseSecret string

	Output  string
	Verbose bool
}

func DefaultConfig() *Config {
	return &Config{
		ServerURL:     envOr("LICENSECTL_SERVER", "http://localhost:3000"),
		Token:         os.Getenv("LICENSECTL_TOKEN"),
		TokenFile:     envOr("LICENSECTL_TOKEN_FILE", defaultTokenFile()),
		WebhookSecret: os.Getenv("TEBEX_SECRET"),
		LicenseSecret: os.Getenv("LICENSE_SECRET"),
		Output:        "text",
	}
}

// LoadToken fills Token from TokenFile when neither flag nor env set it.
// A missing file leaves it empty; admin calls then fail with unauthorized.
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".licensectl", "token")
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
