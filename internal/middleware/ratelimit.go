package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcoot/tebex-license-server/internal/dependencies/clock"
)

// RateLimitConfig describes a per-client token bucket
type RateLimitConfig struct {
	// Requests allowed per Window; also the burst size
	Requests int
	Window   time.Duration
	// IdleTTL evicts clients that have not been seen for this long
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks one limiter per client key
type RateLimiter struct {
	cfg   RateLimitConfig
	clock clock.Clock
	key   func(*http.Request) string

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter creates a per-client rate limiter keyed by key(r)
func NewRateLimiter(cfg RateLimitConfig, clk clock.Clock, key func(*http.Request) string) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * cfg.Window
	}
	return &RateLimiter{
		cfg:       cfg,
		clock:     clk,
		key:       key,
		visitors:  make(map[string]*visitor),
		lastSweep: clk.Now(),
	}
}

// Allow reports whether the client identified by key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.cfg.IdleTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.cfg.IdleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		every := rl.cfg.Window / time.Duration(rl.cfg.Requests)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.cfg.Requests)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Handler rejects requests over the limit with onLimit
func (rl *RateLimiter) Handler(onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(rl.key(r)) {
				w.Header().Set("Retry-After", retryAfter(rl.cfg))
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func retryAfter(cfg RateLimitConfig) string {
	secs := int((cfg.Window/time.Duration(cfg.Requests) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
