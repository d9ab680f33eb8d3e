package credential

import (
	"encoding/hex"
	"time"

	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
	"github.com/mcoot/tebex-license-server/internal/model"
)

// opaqueKeyBytes is the entropy of an opaque license key (128 bits)
const opaqueKeyBytes = 16

// OpaqueCodec issues random hex tokens that carry no claims.
// The store record is the only source of expiry and identity.
type OpaqueCodec struct {
	lifetime time.Duration
	clock    clock.Clock
	random   random.Random
}

// Ensure OpaqueCodec implements Codec
var _ Codec = (*OpaqueCodec)(nil)

// NewOpaqueCodec creates an opaque token codec
func NewOpaqueCodec(lifetime time.Duration, clk clock.Clock, rnd random.Random) *OpaqueCodec {
	return &OpaqueCodec{
		lifetime: lifetime,
		clock:    clk,
		random:   rnd,
	}
}

func (c *OpaqueCodec) Name() string {
	return KindOpaque
}

func (c *OpaqueCodec) MinLength() int {
	return 0
}

// Mint generates a 32 character hex token. The expiry in the returned
// claims is for the store record; the token itself does not encode it.
func (c *OpaqueCodec) Mint(player string, productID int64) (*Minted, error) {
	b, err := c.random.Bytes(opaqueKeyBytes)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	return &Minted{
		Credential: hex.EncodeToString(b),
		Claims: model.Claims{
			Player:    player,
			ProductID: productID,
			IssuedAt:  now,
			ExpiresAt: now.Add(c.lifetime),
		},
	}, nil
}

// Verify has nothing to check cryptographically and always succeeds
func (c *OpaqueCodec) Verify(string) (*model.Claims, error) {
	return &model.Claims{}, nil
}
