package credential

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tebex-license-server/internal/dependencies/mocks"
)

var testSecret = []byte("test-license-secret-0123456789")

type SignedCodecSuite struct {
	suite.Suite
	clock  *mocks.MockClock
	random *mocks.MockRandom
	codec  *SignedCodec
}

func TestSignedCodecSuite(t *testing.T) {
	suite.Run(t, new(SignedCodecSuite))
}

func (s *SignedCodecSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()

	codec, err := NewSignedCodec(testSecret, DefaultLifetime, s.clock, s.random)
	s.Require().NoError(err)
	s.codec = codec
}

func (s *SignedCodecSuite) TestMintThenVerifyRoundTrips() {
	s.random.QueueUUID("6f1c2b8e-0d7a-4c61-9d1e-3f0a2b4c5d6e")

	minted, err := s.codec.Mint("Alice", 7156613)
	s.Require().NoError(err)

	claims, err := s.codec.Verify(minted.Credential)
	s.Require().NoError(err)
	s.Equal("Alice", claims.Player)
	s.Equal(int64(7156613), claims.ProductID)
	s.Equal("6f1c2b8e-0d7a-4c61-9d1e-3f0a2b4c5d6e", claims.ID)
	s.Equal(minted.Claims.ExpiresAt, claims.ExpiresAt)
	s.Equal(minted.Claims.IssuedAt, claims.IssuedAt)
}

func (s *SignedCodecSuite) TestMintSetsThirtyDayExpiry() {
	minted, err := s.codec.Mint("Alice", 1)
	s.Require().NoError(err)

	s.Equal(s.clock.Now().Add(30*24*time.Hour), minted.Claims.ExpiresAt)
}

func (s *SignedCodecSuite) TestMintProducesUniqueCredentials() {
	a, err := s.codec.Mint("Alice", 1)
	s.Require().NoError(err)
	b, err := s.codec.Mint("Alice", 1)
	s.Require().NoError(err)

	s.NotEqual(a.Credential, b.Credential)
	s.NotEqual(a.Claims.ID, b.Claims.ID)
}

func (s *SignedCodecSuite) TestVerifyRejectsExpired() {
	minted, err := s.codec.Mint("Alice", 1)
	s.Require().NoError(err)

	s.clock.Advance(31 * 24 * time.Hour)

	_, err = s.codec.Verify(minted.Credential)
	s.ErrorIs(err, ErrExpired)
}

func (s *SignedCodecSuite) TestVerifyRejectsWrongSecret() {
	other, err := NewSignedCodec([]byte("another-secret-entirely"), DefaultLifetime, s.clock, s.random)
	s.Require().NoError(err)

	minted, err := other.Mint("Mallory", 1)
	s.Require().NoError(err)

	_, err = s.codec.Verify(minted.Credential)
	s.ErrorIs(err, ErrSignature)
}

func (s *SignedCodecSuite) TestVerifyRejectsTamperedPayload() {
	minted, err := s.codec.Mint("Alice", 1)
	s.Require().NoError(err)

	forged, err := s.codec.Mint("Mallory", 1)
	s.Require().NoError(err)

	// Splice Mallory's payload onto Alice's signature
	aliceParts := strings.Split(minted.Credential, ".")
	malloryParts := strings.Split(forged.Credential, ".")
	spliced := aliceParts[0] + "." + malloryParts[1] + "." + aliceParts[2]

	_, err = s.codec.Verify(spliced)
	s.ErrorIs(err, ErrSignature)
}

func (s *SignedCodecSuite) TestVerifyRejectsOtherAlgorithms() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, licenseClaims{
		Player: "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "id",
			ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
		},
	})
	raw, err := token.SignedString(testSecret)
	s.Require().NoError(err)

	_, err = s.codec.Verify(raw)
	s.Error(err)
}

func (s *SignedCodecSuite) TestVerifyRequiresExpiry() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, licenseClaims{
		Player:           "Alice",
		RegisteredClaims: jwt.RegisteredClaims{ID: "id"},
	})
	raw, err := token.SignedString(testSecret)
	s.Require().NoError(err)

	_, err = s.codec.Verify(raw)
	s.ErrorIs(err, ErrMalformed)
}

func (s *SignedCodecSuite) TestVerifyRejectsGarbage() {
	for _, raw := range []string{"", "garbage", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "a.b.c.d.e.f.g.h.i.j.k"} {
		_, err := s.codec.Verify(raw)
		s.ErrorIs(err, ErrMalformed, raw)
	}
}

func (s *SignedCodecSuite) TestInspectIgnoresSignatureAndExpiry() {
	minted, err := s.codec.Mint("Alice", 7156613)
	s.Require().NoError(err)

	s.clock.Advance(DefaultLifetime + time.Hour)
	other, err := NewSignedCodec([]byte("a-different-secret"), DefaultLifetime, s.clock, s.random)
	s.Require().NoError(err)
	_, err = other.Verify(minted.Credential)
	s.Error(err)

	claims, err := Inspect(minted.Credential)
	s.Require().NoError(err)
	s.Equal("Alice", claims.Player)
	s.Equal(minted.Claims.ExpiresAt, claims.ExpiresAt)

	_, err = Inspect("garbage")
	s.ErrorIs(err, ErrMalformed)
}

func (s *SignedCodecSuite) TestNewSignedCodecRequiresSecret() {
	_, err := NewSignedCodec(nil, DefaultLifetime, s.clock, s.random)
	s.ErrorIs(err, ErrSecretRequired)
}

type OpaqueCodecSuite struct {
	suite.Suite
	clock  *mocks.MockClock
	random *mocks.MockRandom
	codec  *OpaqueCodec
}

func TestOpaqueCodecSuite(t *testing.T) {
	suite.Run(t, new(OpaqueCodecSuite))
}

func (s *OpaqueCodecSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.codec = NewOpaqueCodec(DefaultLifetime, s.clock, s.random)
}

func (s *OpaqueCodecSuite) TestMintHexEncodesSixteenBytes() {
	s.random.QueueBytes([]byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
	})

	minted, err := s.codec.Mint("Alice", 1)
	s.Require().NoError(err)
	s.Equal("00112233445566778899aabbccddeeff", minted.Credential)
	s.Equal(s.clock.Now().Add(DefaultLifetime), minted.Claims.ExpiresAt)
}

func (s *OpaqueCodecSuite) TestVerifyIsNoop() {
	claims, err := s.codec.Verify("anything")
	s.Require().NoError(err)
	s.True(claims.ExpiresAt.IsZero())
	s.Equal(0, s.codec.MinLength())
}

func TestNewSelectsCodec(t *testing.T) {
	clk := mocks.NewMockClock(time.Now())
	rnd := mocks.NewMockRandom()

	signed, err := New(Config{Kind: KindSigned, Secret: testSecret}, clk, rnd)
	if err != nil {
		t.Fatal(err)
	}
	if signed.Name() != KindSigned {
		t.Fatalf("expected signed codec, got %s", signed.Name())
	}

	opaque, err := New(Config{Kind: KindOpaque}, clk, rnd)
	if err != nil {
		t.Fatal(err)
	}
	if opaque.Name() != KindOpaque {
		t.Fatalf("expected opaque codec, got %s", opaque.Name())
	}

	if _, err := New(Config{Kind: "rot13"}, clk, rnd); err == nil {
		t.Fatal("expected error for unknown codec")
	}
	if _, err := New(Config{Kind: KindSigned, Secret: testSecret, Lifetime: -time.Second}, clk, rnd); err == nil {
		t.Fatal("expected error for negative lifetime")
	}
}
