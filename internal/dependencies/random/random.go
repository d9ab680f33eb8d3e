package random

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Random provides randomness that can be mocked for testing
type Random interface {
	// Bytes returns n cryptographically random bytes
	Bytes(n int) ([]byte, error)

	// UUID returns a new random unique identifier
	UUID() (string, error)
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Bytes returns n bytes read from crypto/rand
func (r *CryptoRandom) Bytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid byte count %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// UUID returns a random (v4) UUID string
func (r *CryptoRandom) UUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
