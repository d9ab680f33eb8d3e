package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/storage"
)

// Hash fields of a license record
const (
	fieldCredential = "credential"
	fieldPlayer     = "player"
	fieldEmail      = "email"
	fieldExpires    = "expires"
	fieldCreated    = "created"
	fieldEventID    = "event_id"
)

// insertScript writes the record hash and the event index together, refusing
// if either already exists. Returns 1 on insert, 0 on conflict.
var insertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
if ARGV[6] ~= "" and redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "credential", ARGV[1],
  "player", ARGV[2],
  "email", ARGV[3],
  "expires", ARGV[4],
  "created", ARGV[5],
  "event_id", ARGV[6])
if ARGV[6] ~= "" then
  redis.call("SET", KEYS[2], ARGV[1])
end
return 1
`)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a new Redis storage instance
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultConfig().DialTimeout
	}
	opts.DialTimeout = dialTimeout
	if cfg.CommandTimeout > 0 {
		opts.ReadTimeout = cfg.CommandTimeout
		opts.WriteTimeout = cfg.CommandTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config, logger *slog.Logger) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) InsertLicense(ctx context.Context, rec *model.Record) error {
	keys := []string{licenseKey(rec.Credential), eventIndexKey(rec.EventID)}
	args := []any{
		rec.Credential,
		rec.Player,
		rec.Email,
		strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
		rec.EventID,
	}

	var inserted int64
	err := storage.RetryOnce(ctx, s.logger, "insert", func(ctx context.Context) error {
		var err error
		inserted, err = insertScript.Run(ctx, s.client, keys, args...).Int64()
		return err
	})
	if err != nil {
		return err
	}
	if inserted == 0 {
		return model.ErrLicenseExists
	}
	return nil
}

func (s *Storage) GetLicense(ctx context.Context, credential string) (*model.Record, error) {
	var fields map[string]string
	err := storage.RetryOnce(ctx, s.logger, "get", func(ctx context.Context) error {
		var err error
		fields, err = s.client.HGetAll(ctx, licenseKey(credential)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrLicenseNotFound
	}
	return parseRecord(fields)
}

func (s *Storage) GetLicenseByEvent(ctx context.Context, eventID string) (*model.Record, error) {
	var credential string
	err := storage.RetryOnce(ctx, s.logger, "get_by_event", func(ctx context.Context) error {
		var err error
		credential, err = s.client.Get(ctx, eventIndexKey(eventID)).Result()
		return err
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrLicenseNotFound
		}
		return nil, err
	}

	rec, err := s.GetLicense(ctx, credential)
	if errors.Is(err, model.ErrLicenseNotFound) {
		return nil, model.ErrLicenseRevoked
	}
	return rec, err
}

func (s *Storage) DeleteLicense(ctx context.Context, credential string) error {
	// The event index key is left in place as the revocation tombstone.
	var deleted int64
	err := storage.RetryOnce(ctx, s.logger, "delete", func(ctx context.Context) error {
		var err error
		deleted, err = s.client.Del(ctx, licenseKey(credential)).Result()
		return err
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return model.ErrLicenseNotFound
	}
	return nil
}

func parseRecord(fields map[string]string) (*model.Record, error) {
	expires, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires: %w", err)
	}
	created, err := strconv.ParseInt(fields[fieldCreated], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created: %w", err)
	}

	return &model.Record{
		Credential: fields[fieldCredential],
		Player:     fields[fieldPlayer],
		Email:      fields[fieldEmail],
		ExpiresAt:  time.UnixMilli(expires).UTC(),
		CreatedAt:  time.UnixMilli(created).UTC(),
		EventID:    fields[fieldEventID],
	}, nil
}
