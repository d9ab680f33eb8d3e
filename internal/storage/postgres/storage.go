package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// uniqueViolation is the SQLSTATE for a unique constraint failure
const uniqueViolation = pq.ErrorCode("23505")

// Config holds Postgres connection settings
type Config struct {
	URL      string
	MaxConns int
}

// DefaultConfig returns sensible defaults for Postgres configuration
func DefaultConfig() Config {
	return Config{
		URL:      "postgres://localhost:5432/licenses?sslmode=disable",
		MaxConns: 10,
	}
}

// licenseRow is the licenses table as seen by sqlx
type licenseRow struct {
	LicenseKey string         `db:"license_key"`
	Player     string         `db:"player"`
	Email      string         `db:"email"`
	ExpiresAt  time.Time      `db:"expires_at"`
	CreatedAt  time.Time      `db:"created_at"`
	EventID    sql.NullString `db:"event_id"`
	RevokedAt  sql.NullTime   `db:"revoked_at"`
}

func (r licenseRow) toRecord() *model.Record {
	return &model.Record{
		Credential: r.LicenseKey,
		Player:     r.Player,
		Email:      r.Email,
		ExpiresAt:  r.ExpiresAt.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
		EventID:    r.EventID.String,
	}
}

func rowFromRecord(rec *model.Record) licenseRow {
	return licenseRow{
		LicenseKey: rec.Credential,
		Player:     rec.Player,
		Email:      rec.Email,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		EventID:    sql.NullString{String: rec.EventID, Valid: rec.EventID != ""},
	}
}

// Storage is a Postgres-backed implementation of the storage interface
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New connects to Postgres and applies the embedded migrations
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an existing connection pool. Migrations are not applied.
func NewWithDB(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the connection pool
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const insertLicenseQuery = `
INSERT INTO licenses (license_key, player, email, expires_at, created_at, event_id)
VALUES (:license_key, :player, :email, :expires_at, :created_at, :event_id)`

func (s *Storage) InsertLicense(ctx context.Context, rec *model.Record) error {
	row := rowFromRecord(rec)
	err := storage.RetryOnce(ctx, s.logger, "insert", func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, insertLicenseQuery, row)
		return err
	})
	return mapError(err)
}

const selectLicenseColumns = `SELECT license_key, player, email, expires_at, created_at, event_id, revoked_at FROM licenses`

// Revoked rows stay in the table so their event id remains claimed.
func (s *Storage) GetLicense(ctx context.Context, credential string) (*model.Record, error) {
	row, err := s.getOne(ctx, "get", selectLicenseColumns+` WHERE license_key = $1`, credential)
	if err != nil {
		return nil, err
	}
	if row.RevokedAt.Valid {
		return nil, model.ErrLicenseNotFound
	}
	return row.toRecord(), nil
}

func (s *Storage) GetLicenseByEvent(ctx context.Context, eventID string) (*model.Record, error) {
	row, err := s.getOne(ctx, "get_by_event", selectLicenseColumns+` WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, err
	}
	if row.RevokedAt.Valid {
		return nil, model.ErrLicenseRevoked
	}
	return row.toRecord(), nil
}

func (s *Storage) getOne(ctx context.Context, name, query string, arg string) (*licenseRow, error) {
	var row licenseRow
	err := storage.RetryOnce(ctx, s.logger, name, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, query, arg)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &row, nil
}

const revokeLicenseQuery = `UPDATE licenses SET revoked_at = now() WHERE license_key = $1 AND revoked_at IS NULL`

func (s *Storage) DeleteLicense(ctx context.Context, credential string) error {
	var n int64
	err := storage.RetryOnce(ctx, s.logger, "delete", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, revokeLicenseQuery, credential)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return model.ErrLicenseNotFound
	}
	return nil
}

// mapError translates driver errors into model sentinels
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrLicenseNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return model.ErrLicenseExists
	}
	return err
}
