package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/metrics"
	"github.com/JonMunkholm/tabload/internal/persist"
	"github.com/JonMunkholm/tabload/internal/schema"
	"github.com/JonMunkholm/tabload/internal/store"
	"github.com/JonMunkholm/tabload/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	flags := pflag.NewFlagSet("tabload-server", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	flags.String("host", "", "listen host")
	flags.Int("port", 0, "listen port")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("backend", "", "storage backend: postgres or sqlite")
	flags.String("sqlite-path", "", "SQLite database file")
	flags.String("schema-dir", "", "directory of schema YAML files")
	flags.Bool("watch-schemas", false, "reload schemas when files change")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")
	flags.String("encoding", "", "default CSV encoding")
	flags.Bool("unique-checks", false, "reject duplicate keys during validation")
	_ = flags.Parse(os.Args[1:])

	// Load and validate configuration
	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"backend", cfg.Storage.Backend,
		"schema_dir", cfg.Schema.Dir,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	logger.Debug("effective configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Schemas
	schemas, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	registry, err := schema.NewRegistry(schemas...)
	if err != nil {
		return fmt.Errorf("register schemas: %w", err)
	}
	logger.Info("schemas registered", "count", registry.Len(), "entities", registry.Entities())

	// Storage
	db, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.New()
	limiter := core.NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	collector.RegisterIngestGauges(limiter.ActiveCount, limiter.MaxConcurrent)

	engine := persist.NewEngine(db, persist.WithLogger(logger), persist.WithRecorder(collector))
	service := core.NewService(registry, engine,
		core.WithLimiter(limiter),
		core.WithUniqueChecks(cfg.Ingest.UniqueChecks),
		core.WithIngestTimeout(cfg.Ingest.Timeout),
		core.WithValidationRecorder(collector),
	)

	server := web.NewServer(service, cfg, web.WithMetrics(collector), web.WithPinger(db))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Schema.Watch {
		g.Go(func() error {
			return schema.Watch(gctx, cfg.Schema.Dir, registry, logger)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active ingests to complete (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			logger.Info("waiting for ingests to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				logger.Warn("ingests did not complete in time", "error", err)
			} else {
				logger.Info("all ingests completed")
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
