package factory

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/tebex-license-server/internal/credential"
	"github.com/mcoot/tebex-license-server/internal/dependencies/mocks"
	"github.com/mcoot/tebex-license-server/internal/notify"
	"github.com/mcoot/tebex-license-server/internal/storage/memory"
	"github.com/mcoot/tebex-license-server/internal/testutil"
)

// TestProductID is the licensed package in test apps
const TestProductID = int64(7156613)

// TestSecret signs credentials in test apps
const TestSecret = "test-license-secret-0123456789"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	MemStore   *memory.Storage
	Sender     *RecordingSender
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithCodec(credential.KindSigned)
}

// NewTestAppWithCodec creates a test App using the given credential codec kind
func NewTestAppWithCodec(kind string) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	sender := &RecordingSender{}

	codec, err := credential.New(credential.Config{Kind: kind, Secret: []byte(TestSecret)}, mockClock, mockRandom)
	if err != nil {
		panic(err)
	}

	app := newWithDependencies(store, codec, sender, mockClock, mockRandom, TestProductID, notify.DefaultQueueConfig(), testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		MemStore:   store,
		Sender:     sender,
	}
}

// RecordingSender captures messages instead of delivering them
type RecordingSender struct {
	mu       sync.Mutex
	messages []notify.Message
}

// Send records msg
func (s *RecordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far
func (s *RecordingSender) Messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.messages...)
}
