// Package credential mints and verifies license keys.
//
// Two strategies sit behind the Codec interface. SignedCodec produces an
// HS256 JWT whose embedded claims and expiry can be checked without a store
// round-trip. OpaqueCodec produces an unguessable random token and defers all
// trust to the license store. Deployments pick one.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
	"github.com/mcoot/tebex-license-server/internal/model"
)

// DefaultLifetime is how long an issued license stays valid
const DefaultLifetime = 30 * 24 * time.Hour

// Codec kinds
const (
	KindSigned = "signed"
	KindOpaque = "opaque"
)

// Verification errors. Callers collapse all of them into a single
// "invalid" decision; they are distinguished only for logging.
var (
	ErrMalformed      = errors.New("malformed credential")
	ErrSignature      = errors.New("credential signature mismatch")
	ErrExpired        = errors.New("credential expired")
	ErrSecretRequired = errors.New("signing secret is required")
	ErrLifetime       = errors.New("lifetime must be positive")
)

// Minted is a freshly issued credential together with the claims it represents
type Minted struct {
	Credential string
	Claims     model.Claims
}

// Codec constructs and parses license credentials
type Codec interface {
	// Name returns the codec kind
	Name() string

	// Mint issues a new credential for the player and product
	Mint(player string, productID int64) (*Minted, error)

	// Verify checks a presented credential and returns its embedded claims
	Verify(credential string) (*model.Claims, error)

	// MinLength is the shortest credential worth verifying; 0 means no bound
	MinLength() int
}

// Config selects and parameterises a codec
type Config struct {
	Kind     string
	Secret   []byte
	Lifetime time.Duration
}

// New builds the codec described by cfg
func New(cfg Config, clk clock.Clock, rnd random.Random) (Codec, error) {
	if cfg.Lifetime == 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Lifetime < 0 {
		return nil, ErrLifetime
	}

	switch cfg.Kind {
	case "", KindSigned:
		return NewSignedCodec(cfg.Secret, cfg.Lifetime, clk, rnd)
	case KindOpaque:
		return NewOpaqueCodec(cfg.Lifetime, clk, rnd), nil
	default:
		return nil, fmt.Errorf("unknown credential codec %q: must be %q or %q", cfg.Kind, KindSigned, KindOpaque)
	}
}
