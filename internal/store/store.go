// Package store opens the configured storage backend.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/persist"
	"github.com/JonMunkholm/tabload/internal/store/postgres"
	"github.com/JonMunkholm/tabload/internal/store/sqlite"
)

// Handle is an open storage backend.
type Handle struct {
	persist.Backend
	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the connection.
func (h *Handle) Ping(ctx context.Context) error { return h.ping(ctx) }

// Close releases the connection.
func (h *Handle) Close() { h.close() }

// Open connects to the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Handle, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database", "backend", "postgres", "name", databaseName(cfg.Database.URL))
		return &Handle{Backend: postgres.New(pool), ping: pool.Ping, close: pool.Close}, nil

	case config.BackendSQLite:
		st, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.Logger = logger
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		logger.Info("connected to database", "backend", "sqlite", "path", cfg.Storage.SQLitePath)
		return &Handle{
			Backend: st,
			ping:    st.Ping,
			close:   func() { _ = st.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// databaseName returns the database part of a connection URL for logging.
func databaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
