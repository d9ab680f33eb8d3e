package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
	"github.com/mcoot/tebex-license-server/internal/model"
)

// signedMinLength rejects obviously truncated input before any parsing
const signedMinLength = 20

// licenseClaims is the JWT payload of a signed license key
type licenseClaims struct {
	Player  string `json:"player"`
	Product int64  `json:"product"`
	jwt.RegisteredClaims
}

// SignedCodec issues HS256 JWT license keys
type SignedCodec struct {
	secret   []byte
	lifetime time.Duration
	clock    clock.Clock
	random   random.Random
}

// Ensure SignedCodec implements Codec
var _ Codec = (*SignedCodec)(nil)

// NewSignedCodec creates a codec signing with the given symmetric secret
func NewSignedCodec(secret []byte, lifetime time.Duration, clk clock.Clock, rnd random.Random) (*SignedCodec, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	if lifetime <= 0 {
		return nil, ErrLifetime
	}
	return &SignedCodec{
		secret:   secret,
		lifetime: lifetime,
		clock:    clk,
		random:   rnd,
	}, nil
}

func (c *SignedCodec) Name() string {
	return KindSigned
}

func (c *SignedCodec) MinLength() int {
	return signedMinLength
}

// Mint signs a new license key. Timestamps are truncated to whole seconds
// so that the returned claims match what Verify later decodes.
func (c *SignedCodec) Mint(player string, productID int64) (*Minted, error) {
	jti, err := c.random.UUID()
	if err != nil {
		return nil, err
	}

	now := c.clock.Now().Truncate(time.Second)
	expires := now.Add(c.lifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, licenseClaims{
		Player:  player,
		Product: productID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign license key: %w", err)
	}

	return &Minted{
		Credential: signed,
		Claims: model.Claims{
			ID:        jti,
			Player:    player,
			ProductID: productID,
			IssuedAt:  now,
			ExpiresAt: expires,
		},
	}, nil
}

// Verify recomputes the signature and checks the embedded expiry against
// the codec's clock. Only HS256 is accepted.
func (c *SignedCodec) Verify(raw string) (*model.Claims, error) {
	if len(raw) < signedMinLength {
		return nil, ErrMalformed
	}

	parsed, err := jwt.ParseWithClaims(raw, &licenseClaims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*licenseClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrMalformed)
	}

	out := &model.Claims{
		ID:        claims.ID,
		Player:    claims.Player,
		ProductID: claims.Product,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

// classify maps jwt parse errors onto the codec's error set
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// Inspect decodes a signed license key without checking its signature or
// expiry. It is for operator tooling only; never use it to grant access.
func Inspect(raw string) (*model.Claims, error) {
	claims := &licenseClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := &model.Claims{
		ID:        claims.ID,
		Player:    claims.Player,
		ProductID: claims.Product,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
