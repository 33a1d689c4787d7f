// Package config holds the relay's environment-sourced configuration:
// a Defaults()/Verify() pair over a single Relay struct, with every
// field read from the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Relay is the full configuration for the realtime relay process.
type Relay struct {
	// Port the bidirectional-stream + HTTP endpoints listen on.
	Port int

	// JWTSecret is the symmetric secret used to verify session tokens.
	// Loading fails hard at startup if this is empty.
	JWTSecret string

	// RedisURL points at the optional fast cache tier. Empty disables it
	// and the Snapshot Store falls back to durable-only persistence.
	RedisURL string

	// DatabaseURL is the durable store DSN. Prefixed with "postgres://"
	// or "postgresql://" selects the Postgres backend; anything else
	// (including a bare file path) selects SQLite.
	DatabaseURL string

	// SentryDSN optionally enables crash reporting. Empty disables it.
	SentryDSN string

	LogLevel string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	PersistDebounceCache   time.Duration
	PersistDebounceDurable time.Duration
	DurableWriteFloor      time.Duration

	AccessCacheTTL time.Duration
}

// Defaults populates every fixed interval and the fields environment
// loading may leave unset.
func (c *Relay) Defaults() {
	c.Port = 4001
	c.LogLevel = "info"
	c.HeartbeatInterval = 5 * time.Second
	c.HeartbeatTimeout = 10 * time.Second
	c.PersistDebounceCache = time.Second
	c.PersistDebounceDurable = 5 * time.Second
	c.DurableWriteFloor = 5 * time.Second
	c.AccessCacheTTL = 2 * time.Second
}

// Verify checks the loaded configuration and reports every problem found.
func (c *Relay) Verify(errs *ConfigErrors) {
	checkNotEmpty(errs, "JWT_SECRET", c.JWTSecret)
	checkNotEmpty(errs, "DATABASE_URL", c.DatabaseURL)
	checkPositive(errs, "REALTIME_PORT", int64(c.Port))
	checkPositive(errs, "heartbeat_interval", int64(c.HeartbeatInterval))
	checkPositive(errs, "heartbeat_timeout", int64(c.HeartbeatTimeout))
	checkPositive(errs, "persist_debounce_cache", int64(c.PersistDebounceCache))
	checkPositive(errs, "persist_debounce_durable", int64(c.PersistDebounceDurable))
	checkPositive(errs, "durable_write_floor", int64(c.DurableWriteFloor))
}

// LoadFromEnvironment reads REALTIME_PORT, JWT_SECRET, REDIS_URL,
// DATABASE_URL, SENTRY_DSN and LOG_LEVEL, applies Defaults for anything
// left unset, then Verifies the result. Fatal misconfiguration (a missing
// JWT secret or database URL) is returned as an error — callers in
// cmd/relay are expected to exit non-zero rather than start degraded.
func LoadFromEnvironment() (*Relay, error) {
	c := &Relay{}
	c.Defaults()

	if v := os.Getenv("REALTIME_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REALTIME_PORT: %w", err)
		}
		c.Port = port
	}

	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.RedisURL = os.Getenv("REDIS_URL")
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.SentryDSN = os.Getenv("SENTRY_DSN")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	var errs ConfigErrors
	c.Verify(&errs)
	if len(errs) > 0 {
		return nil, errs
	}
	return c, nil
}
