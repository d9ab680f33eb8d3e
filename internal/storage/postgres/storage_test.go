package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/testutil"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(sql.ErrNoRows), model.ErrLicenseNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("get: %w", sql.ErrNoRows)), model.ErrLicenseNotFound)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23505"}), model.ErrLicenseExists)

	other := &pq.Error{Code: "42P01"}
	assert.Same(t, other, mapError(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapError(plain))
}

func TestRowRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := &model.Record{
		Credential: "key-1",
		Player:     "Alice",
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
	}

	row := rowFromRecord(rec)
	assert.False(t, row.EventID.Valid)
	assert.Equal(t, rec, row.toRecord())

	rec.EventID = "tx1"
	row = rowFromRecord(rec)
	assert.True(t, row.EventID.Valid)
	assert.Equal(t, "tx1", row.toRecord().EventID)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	assert.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_licenses.sql", "002_revoked_at.sql"}, names)
}

// StorageSuite runs against a real database when LICENSE_TEST_DATABASE_URL is set
type StorageSuite struct {
	suite.Suite
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	if os.Getenv("LICENSE_TEST_DATABASE_URL") == "" {
		t.Skip("LICENSE_TEST_DATABASE_URL not set")
	}
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.ctx = context.Background()
	cfg := DefaultConfig()
	cfg.URL = os.Getenv("LICENSE_TEST_DATABASE_URL")

	store, err := New(s.ctx, cfg, testutil.NopLogger())
	s.Require().NoError(err)
	s.storage = store

	_, err = store.db.ExecContext(s.ctx, `TRUNCATE licenses`)
	s.Require().NoError(err)
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func testRecord(credential, eventID string) *model.Record {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &model.Record{
		Credential: credential,
		Player:     "Alice",
		Email:      "alice@example.com",
		CreatedAt:  now,
		ExpiresAt:  now.Add(30 * 24 * time.Hour),
		EventID:    eventID,
	}
}

func (s *StorageSuite) TestInsertAndGetLicense() {
	rec := testRecord("key-1", "tx1")
	s.Require().NoError(s.storage.InsertLicense(s.ctx, rec))

	got, err := s.storage.GetLicense(s.ctx, "key-1")
	s.Require().NoError(err)
	s.Equal(rec.Player, got.Player)
	s.True(rec.ExpiresAt.Equal(got.ExpiresAt))
}

func (s *StorageSuite) TestDuplicates() {
	s.Require().NoError(s.storage.InsertLicense(s.ctx, testRecord("key-1", "tx1")))

	s.ErrorIs(s.storage.InsertLicense(s.ctx, testRecord("key-1", "")), model.ErrLicenseExists)
	s.ErrorIs(s.storage.InsertLicense(s.ctx, testRecord("key-2", "tx1")), model.ErrLicenseExists)
	s.NoError(s.storage.InsertLicense(s.ctx, testRecord("key-3", "")))
	s.NoError(s.storage.InsertLicense(s.ctx, testRecord("key-4", "")))
}

func (s *StorageSuite) TestGetLicenseByEvent() {
	s.Require().NoError(s.storage.InsertLicense(s.ctx, testRecord("key-1", "tx1")))

	got, err := s.storage.GetLicenseByEvent(s.ctx, "tx1")
	s.Require().NoError(err)
	s.Equal("key-1", got.Credential)

	_, err = s.storage.GetLicenseByEvent(s.ctx, "tx2")
	s.ErrorIs(err, model.ErrLicenseNotFound)
}

func (s *StorageSuite) TestDeleteLicense() {
	s.Require().NoError(s.storage.InsertLicense(s.ctx, testRecord("key-1", "tx1")))

	s.NoError(s.storage.DeleteLicense(s.ctx, "key-1"))
	s.ErrorIs(s.storage.DeleteLicense(s.ctx, "key-1"), model.ErrLicenseNotFound)

	_, err := s.storage.GetLicense(s.ctx, "key-1")
	s.ErrorIs(err, model.ErrLicenseNotFound)
	_, err = s.storage.GetLicenseByEvent(s.ctx, "tx1")
	s.ErrorIs(err, model.ErrLicenseRevoked)
	s.ErrorIs(s.storage.InsertLicense(s.ctx, testRecord("key-2", "tx1")), model.ErrLicenseExists)
}
