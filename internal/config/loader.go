package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. The first word after the
// prefix names the section: TABLOAD_SERVER_PORT sets server.port.
const EnvPrefix = "TABLOAD_"

// defaults are loaded before any other source.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     "60s",
	"server.write_timeout":    "10m",
	"server.idle_timeout":     "60s",
	"server.shutdown_timeout": "30s",
	"server.max_body_size":    100 << 20,

	"database.max_conns":          20,
	"database.min_conns":          2,
	"database.max_conn_lifetime":  "1h",
	"database.max_conn_idle_time": "30m",

	"storage.backend":     BackendPostgres,
	"storage.sqlite_path": "tabload.db",

	"ingest.max_concurrent": 5,
	"ingest.max_wait_time":  "30s",
	"ingest.timeout":        "10m",
	"ingest.unique_checks":  true,
	"ingest.encoding":       "utf-8",

	"schema.dir":   "schemas",
	"schema.watch": false,

	"rate.enabled":             true,
	"rate.requests_per_minute": 100,

	"logging.level":  "info",
	"logging.format": "text",

	"metrics.enabled": true,
	"metrics.path":    "/metrics",
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are ignored by the loader.
var flagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"database-url":  "database.url",
	"backend":       "storage.backend",
	"sqlite-path":   "storage.sqlite_path",
	"schema-dir":    "schema.dir",
	"watch-schemas": "schema.watch",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"encoding":      "ingest.encoding",
	"unique-checks": "ingest.unique_checks",
	"keep-empty":    "ingest.keep_empty",
	"clean":         "ingest.clean_cells",
}

// Load reads configuration from defaults, the YAML file at path (skipped
// when path is empty), the environment and flags (nil for none), then
// validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config load %s: %w", path, err)
		}
	}

	// Legacy unprefixed DATABASE_URL, overridden by TABLOAD_DATABASE_URL.
	if url := os.Getenv("DATABASE_URL"); url != "" {
		if err := k.Set("database.url", url); err != nil {
			return nil, fmt.Errorf("config load DATABASE_URL: %w", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config load env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// envKey turns TABLOAD_SECTION_SOME_FIELD into section.some_field.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return ""
	}
	return section + "." + field
}

// normalize trims list entries, which arrive comma-separated from the
// environment.
func (c *Config) normalize() {
	c.Security.APIKeys = trimList(c.Security.APIKeys)
	c.Security.TrustedProxies = trimList(c.Security.TrustedProxies)
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

func trimList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks all configuration values and returns every problem at
// once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	// Storage validation
	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			add("database.url (DATABASE_URL) is required for the postgres backend")
		}
		if c.Database.MaxConns <= 0 {
			add("database.max_conns must be positive")
		}
		if c.Database.MinConns < 0 {
			add("database.min_conns must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			add("database.max_conns (%d) must be >= database.min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		add("storage.backend (%q) must be one of: postgres, sqlite", c.Storage.Backend)
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		add("server.max_body_size must be positive")
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"server.idle_timeout":  c.Server.IdleTimeout,
	} {
		if d < 0 {
			add("%s must be non-negative", name)
		}
	}

	// Ingest validation
	if c.Ingest.MaxConcurrent <= 0 {
		add("ingest.max_concurrent must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		add("ingest.max_wait_time must be positive")
	}
	if c.Ingest.Timeout < 0 {
		add("ingest.timeout must be non-negative")
	}

	if c.Schema.Dir == "" {
		add("schema.dir is required")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		add("rate.requests_per_minute must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		add("security.require_api_key is true but security.api_keys is empty")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		add("logging.level (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		add("logging.format (%q) must be one of: text, json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path (%q) must start with /", c.Metrics.Path)
	}

	return errors.Join(errs...)
}

// String returns a printable summary with credentials masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q, MaxBodySize: %d}, ", c.Server.Addr(), c.Server.MaxBodySize)
	fmt.Fprintf(&b, "Storage: {Backend: %q", c.Storage.Backend)
	if c.Storage.Backend == BackendSQLite {
		fmt.Fprintf(&b, ", SQLitePath: %q}, ", c.Storage.SQLitePath)
	} else {
		fmt.Fprintf(&b, ", URL: %q, MaxConns: %d, MinConns: %d}, ", MaskURL(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	}
	fmt.Fprintf(&b, "Ingest: {MaxConcurrent: %d, Timeout: %s, UniqueChecks: %v}, ",
		c.Ingest.MaxConcurrent, c.Ingest.Timeout, c.Ingest.UniqueChecks)
	fmt.Fprintf(&b, "Schema: {Dir: %q, Watch: %v}, ", c.Schema.Dir, c.Schema.Watch)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

// MaskURL hides the password of a connection URL.
func MaskURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		if raw == "" {
			return ""
		}
		return "[MASKED]"
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return raw
	}
	userinfo := rest[:at]
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		userinfo = user + ":****"
	}
	return scheme + "://" + userinfo + rest[at:]
}
