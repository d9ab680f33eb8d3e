package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/tebex-license-server/internal/api/apierr"
	"github.com/mcoot/tebex-license-server/internal/api/handler"
	apimiddleware "github.com/mcoot/tebex-license-server/internal/api/middleware"
	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
	"github.com/mcoot/tebex-license-server/internal/metrics"
	"github.com/mcoot/tebex-license-server/internal/middleware"
	"github.com/mcoot/tebex-license-server/internal/services/issuance"
	"github.com/mcoot/tebex-license-server/internal/services/validation"
	"github.com/mcoot/tebex-license-server/internal/storage"
	"github.com/mcoot/tebex-license-server/internal/webhook"
)

// MaxBodyBytes caps every request body
const MaxBodyBytes = 1 << 20

// Default client rate limits
var (
	DefaultGlobalLimit   = middleware.RateLimitConfig{Requests: 300, Window: 15 * time.Minute}
	DefaultValidateLimit = middleware.RateLimitConfig{Requests: 60, Window: time.Minute}
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Storage    storage.Storage
	Issuance   *issuance.Service
	Validation *validation.Service
	Guard      *webhook.Guard
	Decoder    *webhook.Decoder
	Metrics    *metrics.Metrics
	Clock      clock.Clock

	AllowTestPayments bool
	RequireHTTPS      bool
	// TrustedProxies is the number of reverse proxies in front of the server
	TrustedProxies int
	AdminToken     string

	// Zero values fall back to the defaults above
	GlobalLimit   middleware.RateLimitConfig
	ValidateLimit middleware.RateLimitConfig
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	clientIP := func(req *http.Request) string {
		return webhook.ClientIP(req, cfg.TrustedProxies)
	}

	// Create handlers
	healthHandler := handler.NewHealthHandler(cfg.Storage, cfg.Logger)
	webhookHandler := handler.NewWebhookHandler(cfg.Guard, cfg.Decoder, cfg.Issuance, cfg.AllowTestPayments, cfg.Logger)
	licenseHandler := handler.NewLicenseHandler(cfg.Validation, cfg.Storage, cfg.Logger)

	// Create middleware
	globalLimiter := middleware.NewRateLimiter(orDefault(cfg.GlobalLimit, DefaultGlobalLimit), cfg.Clock, clientIP)
	validateLimiter := middleware.NewRateLimiter(orDefault(cfg.ValidateLimit, DefaultValidateLimit), cfg.Clock, clientIP)

	r.HandleFunc("/", healthHandler.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	// Webhook routes
	r.HandleFunc("/tebex", webhookHandler.Handle).Methods(http.MethodPost)
	r.HandleFunc("/tebex/webhook", webhookHandler.Handle).Methods(http.MethodPost)

	// Validation has its own tighter limit on top of the global one
	validate := validateLimiter.Handler(apimiddleware.RejectRateLimited)(http.HandlerFunc(licenseHandler.Validate))
	r.Handle("/validate", validate).Methods(http.MethodGet)

	// Admin routes
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(apimiddleware.AdminAuth(cfg.AdminToken))
	admin.HandleFunc("/licenses/{key}", licenseHandler.Revoke).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)

	// Outermost first
	chain := []func(http.Handler) http.Handler{
		middleware.Logging(cfg.Logger, clientIP),
		apimiddleware.Recovery(cfg.Logger),
		middleware.SecurityHeaders,
	}
	if cfg.RequireHTTPS {
		chain = append(chain, middleware.RequireHTTPS(cfg.TrustedProxies > 0, apimiddleware.RejectHTTPS))
	}
	chain = append(chain,
		globalLimiter.Handler(apimiddleware.RejectRateLimited),
		middleware.MaxBody(MaxBodyBytes),
	)

	var h http.Handler = r
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewNotFoundError())
}

func orDefault(cfg, def middleware.RateLimitConfig) middleware.RateLimitConfig {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return def
	}
	return cfg
}
