package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/tebex-license-server/internal/credential"
	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
	"github.com/mcoot/tebex-license-server/internal/metrics"
	"github.com/mcoot/tebex-license-server/internal/notify"
	"github.com/mcoot/tebex-license-server/internal/notify/resend"
	"github.com/mcoot/tebex-license-server/internal/services/issuance"
	"github.com/mcoot/tebex-license-server/internal/services/validation"
	"github.com/mcoot/tebex-license-server/internal/storage"
	"github.com/mcoot/tebex-license-server/internal/storage/memory"
	pgstorage "github.com/mcoot/tebex-license-server/internal/storage/postgres"
	redisstorage "github.com/mcoot/tebex-license-server/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// Mail driver constants
const (
	MailDriverLog    = "log"
	MailDriverResend = "resend"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	Codec   credential.Codec
	Metrics *metrics.Metrics
	Queue   *notify.Queue

	// Services
	IssuanceService   *issuance.Service
	ValidationService *validation.Service
}

// Run runs serve next to the notification workers until ctx is cancelled
// and serve has returned. The workers get their own context, stopped only
// once serve is done, so emails enqueued by requests that finish during
// the server's drain are still delivered.
func (a *App) Run(ctx context.Context, serve func(context.Context) error) error {
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stopQueue()
		return serve(gctx)
	})
	g.Go(func() error {
		return a.Queue.Run(queueCtx)
	})
	return g.Wait()
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds database settings (required if StorageType is "postgres")
	PostgresConfig *pgstorage.Config

	// Codec selects the credential format; an opaque codec needs no secret
	Codec credential.Config
	// ProductID is the package that earns a license
	ProductID int64

	// MailDriver selects how licenses are delivered ("log" or "resend")
	// If empty, defaults to "log"
	MailDriver string
	// ResendConfig is required if MailDriver is "resend"
	ResendConfig *resend.Config
	// QueueConfig sizes the delivery queue; zero value uses the defaults
	QueueConfig notify.QueueConfig
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	codec, err := credential.New(cfg.Codec, clk, rnd)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("credential codec: %w", err)
	}

	queueCfg := cfg.QueueConfig
	if queueCfg.Workers == 0 {
		queueCfg = notify.DefaultQueueConfig()
	}

	return newWithDependencies(store, codec, sender, clk, rnd, cfg.ProductID, queueCfg, logger), nil
}

func newStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig, logger)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return pgstorage.New(ctx, *cfg.PostgresConfig, logger)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'postgres'")
	}
}

func newSender(cfg Config, logger *slog.Logger) (notify.Sender, error) {
	switch cfg.MailDriver {
	case "", MailDriverLog:
		return notify.NewLogSender(logger), nil
	case MailDriverResend:
		if cfg.ResendConfig == nil {
			return nil, errors.New("ResendConfig required when MailDriver is resend")
		}
		return resend.New(*cfg.ResendConfig)
	default:
		return nil, errors.New("invalid MailDriver: must be 'log' or 'resend'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	codec credential.Codec,
	sender notify.Sender,
	clk clock.Clock,
	rnd random.Random,
	productID int64,
	queueCfg notify.QueueConfig,
	logger *slog.Logger,
) *App {
	m := metrics.New()
	queue := notify.NewQueue(sender, queueCfg, m, logger)

	// Create services
	issuanceService := issuance.New(store, codec, queue, clk, issuance.Config{ProductID: productID}, m, logger)
	validationService := validation.New(store, codec, clk, m, logger)

	return &App{
		Storage:           store,
		Clock:             clk,
		Random:            rnd,
		Codec:             codec,
		Metrics:           m,
		Queue:             queue,
		IssuanceService:   issuanceService,
		ValidationService: validationService,
	}
}
