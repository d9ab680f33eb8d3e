package memory

import (
	"context"
	"sync"

	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	licenses   map[string]model.Record
	eventIndex map[string]string // event id -> credential; outlives revocation
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		licenses:   make(map[string]model.Record),
		eventIndex: make(map[string]string),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) InsertLicense(ctx context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.licenses[rec.Credential]; ok {
		return model.ErrLicenseExists
	}
	if rec.EventID != "" {
		if _, ok := s.eventIndex[rec.EventID]; ok {
			return model.ErrLicenseExists
		}
		s.eventIndex[rec.EventID] = rec.Credential
	}
	s.licenses[rec.Credential] = *rec
	return nil
}

func (s *Storage) GetLicense(ctx context.Context, credential string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.licenses[credential]
	if !ok {
		return nil, model.ErrLicenseNotFound
	}
	return &rec, nil
}

func (s *Storage) GetLicenseByEvent(ctx context.Context, eventID string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.eventIndex[eventID]
	if !ok {
		return nil, model.ErrLicenseNotFound
	}
	rec, ok := s.licenses[credential]
	if !ok {
		return nil, model.ErrLicenseRevoked
	}
	return &rec, nil
}

func (s *Storage) DeleteLicense(ctx context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.licenses[credential]; !ok {
		return model.ErrLicenseNotFound
	}
	delete(s.licenses, credential)
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) Close() error {
	return nil
}

// Count returns the number of stored records
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.licenses)
}
