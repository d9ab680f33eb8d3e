package redis

import "time"

// Config holds Redis connection settings.
type Config struct {
	// URL is a redis:// or rediss:// URL; credentials and db index come from it.
	URL string

	PoolSize     int
	MinIdleConns int

	// DialTimeout bounds connecting, including the startup ping.
	DialTimeout time.Duration
	// CommandTimeout bounds each socket read and write. A stalled command
	// fails fast so the store's single retry still fits inside the request.
	CommandTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		DialTimeout:    5 * time.Second,
		CommandTimeout: 2 * time.Second,
	}
}
