package mocks

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued values are returned in order; once a queue is drained the mock
// falls back to deterministic counter-based output.
type MockRandom struct {
	mu sync.Mutex

	byteResults [][]byte
	uuidResults []string
	calls       int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Bytes returns the next queued byte slice, or n bytes derived from a call counter
func (r *MockRandom) Bytes(n int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byteResults) > 0 {
		result := r.byteResults[0]
		r.byteResults = r.byteResults[1:]
		return result, nil
	}
	r.calls++
	return bytes.Repeat([]byte{byte(r.calls)}, n), nil
}

// UUID returns the next queued id, or a deterministic fake UUID
func (r *MockRandom) UUID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.uuidResults) > 0 {
		result := r.uuidResults[0]
		r.uuidResults = r.uuidResults[1:]
		return result, nil
	}
	r.calls++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", r.calls), nil
}

// QueueBytes adds values to the Bytes result queue
func (r *MockRandom) QueueBytes(values ...[]byte) {
	r.mu.Lock()
	r.byteResults = append(r.byteResults, values...)
	r.mu.Unlock()
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	r.uuidResults = append(r.uuidResults, values...)
	r.mu.Unlock()
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	r.byteResults = nil
	r.uuidResults = nil
	r.calls = 0
	r.mu.Unlock()
}
