// Package config provides centralized configuration management for the
// server and the CLI. Settings come from built-in defaults, an optional
// YAML file, TABLOAD_* environment variables and command-line flags, in
// increasing order of precedence. Everything is validated on startup to
// fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Storage  StorageConfig  `koanf:"storage"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Schema   SchemaConfig   `koanf:"schema"`
	Rate     RateConfig     `koanf:"rate"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `koanf:"host"`

	// Port is the port to listen on (default: 8080)
	Port int `koanf:"port"`

	// ReadTimeout is the maximum duration for reading a request (default: 60s)
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response (default: 10m)
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including draining ingests (default: 30s)
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodySize is the maximum request body in bytes (default: 100MB)
	MaxBodySize int64 `koanf:"max_body_size"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Also read from DATABASE_URL.
	URL string `koanf:"url"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `koanf:"max_conns"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `koanf:"min_conns"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
}

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "postgres" or "sqlite" (default: postgres)
	Backend string `koanf:"backend"`

	// SQLitePath is the database file for the sqlite backend (default: tabload.db)
	SQLitePath string `koanf:"sqlite_path"`
}

// IngestConfig holds validation and ingest settings.
type IngestConfig struct {
	// MaxConcurrent is the maximum number of parallel ingests (default: 5)
	MaxConcurrent int `koanf:"max_concurrent"`

	// MaxWaitTime is how long to wait for an ingest slot (default: 30s)
	MaxWaitTime time.Duration `koanf:"max_wait_time"`

	// Timeout is the maximum duration of one ingest (default: 10m)
	Timeout time.Duration `koanf:"timeout"`

	// UniqueChecks rejects in-batch duplicates on schema unique groups (default: true)
	UniqueChecks bool `koanf:"unique_checks"`

	// Encoding is the default CSV charset (default: utf-8)
	Encoding string `koanf:"encoding"`

	// KeepEmpty keeps empty CSV cells as empty strings instead of nulls
	KeepEmpty bool `koanf:"keep_empty"`

	// CleanCells strips spreadsheet artifacts from every CSV cell
	CleanCells bool `koanf:"clean_cells"`
}

// SchemaConfig holds schema loading settings.
type SchemaConfig struct {
	// Dir holds the *.yaml schema definitions (default: schemas)
	Dir string `koanf:"dir"`

	// Watch reloads schemas when files in Dir change (default: false)
	Watch bool `koanf:"watch"`
}

// RateConfig holds per-IP rate limiting settings.
type RateConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `koanf:"enabled"`

	// RequestsPerMinute is the limit per client IP (default: 100)
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For
	// headers are honored
	TrustedProxies []string `koanf:"trusted_proxies"`

	// RequireAPIKey enables X-API-Key authentication on /api routes
	RequireAPIKey bool `koanf:"require_api_key"`

	// APIKeys lists the accepted keys
	APIKeys []string `koanf:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `koanf:"level"`

	// Format is the log format: text or json (default: text)
	Format string `koanf:"format"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes /metrics (default: true)
	Enabled bool `koanf:"enabled"`

	// Path is the metrics endpoint (default: /metrics)
	Path string `koanf:"path"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
