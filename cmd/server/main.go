package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/tebex-license-server/internal/api"
	"github.com/mcoot/tebex-license-server/internal/config"
	"github.com/mcoot/tebex-license-server/internal/credential"
	"github.com/mcoot/tebex-license-server/internal/factory"
	"github.com/mcoot/tebex-license-server/internal/notify"
	"github.com/mcoot/tebex-license-server/internal/notify/resend"
	pgstorage "github.com/mcoot/tebex-license-server/internal/storage/postgres"
	redisstorage "github.com/mcoot/tebex-license-server/internal/storage/redis"
	"github.com/mcoot/tebex-license-server/internal/webhook"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Refuse to start on missing or placeholder secrets
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create application factory
	app, err := factory.New(ctx, factoryConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Storage.Close(); err != nil {
			logger.Warn("storage close failed", slog.String("error", err.Error()))
		}
	}()

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger:            logger,
		Storage:           app.Storage,
		Issuance:          app.IssuanceService,
		Validation:        app.ValidationService,
		Guard:             webhook.NewGuard([]byte(cfg.TebexSecret), cfg.TebexIPWhitelist, int(cfg.TrustProxy)),
		Decoder:           webhook.NewDecoder(),
		Metrics:           app.Metrics,
		Clock:             app.Clock,
		AllowTestPayments: cfg.TebexAllowTestPayments,
		RequireHTTPS:      cfg.RequireHTTPS,
		TrustedProxies:    int(cfg.TrustProxy),
		AdminToken:        cfg.AdminToken,
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Port
	server := api.NewServer(router, serverConfig, logger)
	ln, err := server.Listen()
	if err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("license server configured",
		slog.String("storage", cfg.StorageType),
		slog.String("codec", app.Codec.Name()),
		slog.String("mail", cfg.MailDriver),
		slog.Int64("package_id", cfg.TebexPackageID),
		slog.Int("ip_allow_list", len(cfg.TebexIPWhitelist)),
		slog.Bool("test_payments", cfg.TebexAllowTestPayments),
	)

	serve := func(ctx context.Context) error {
		return server.Run(ctx, ln)
	}
	if err := app.Run(ctx, serve); err != nil && ctx.Err() == nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// factoryConfig maps environment settings onto the application factory
func factoryConfig(cfg *config.Config, logger *slog.Logger) factory.Config {
	out := factory.Config{
		Logger:      logger,
		StorageType: cfg.StorageType,
		Codec: credential.Config{
			Kind:     cfg.LicenseCodec,
			Secret:   []byte(cfg.LicenseSecret),
			Lifetime: cfg.LicenseLifetime,
		},
		ProductID:  cfg.TebexPackageID,
		MailDriver: cfg.MailDriver,
		QueueConfig: notify.QueueConfig{
			Workers: cfg.NotifyWorkers,
			Size:    cfg.NotifyQueueSize,
		},
	}

	switch cfg.StorageType {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		out.RedisConfig = &redisCfg
	case factory.StorageTypePostgres:
		pgCfg := pgstorage.DefaultConfig()
		pgCfg.URL = cfg.DatabaseURL
		out.PostgresConfig = &pgCfg
	}

	if cfg.MailDriver == factory.MailDriverResend {
		resendCfg := resend.DefaultConfig()
		resendCfg.APIKey = cfg.ResendAPIKey
		resendCfg.From = cfg.MailFrom
		out.ResendConfig = &resendCfg
	}

	return out
}
