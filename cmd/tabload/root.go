package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/persist"
	"github.com/JonMunkholm/tabload/internal/schema"
	"github.com/JonMunkholm/tabload/internal/store"
)

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tabload",
		Short: "Validate and load CSV and JSON files into database tables",
		Long: `tabload checks uploaded files against entity schemas and saves the
rows that pass into the mapped table.

Configuration is read from defaults, an optional YAML file (--config),
TABLOAD_* environment variables and flags, later sources winning.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "path to a YAML config file")
	pf.String("schema-dir", "", "directory of schema YAML files")
	pf.String("backend", "", "storage backend: postgres or sqlite")
	pf.String("database-url", "", "PostgreSQL connection URL")
	pf.String("sqlite-path", "", "SQLite database file")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	pf.String("encoding", "", "CSV source encoding: utf-8, windows-1252 or latin1")
	pf.Bool("keep-empty", false, "keep empty CSV cells as empty strings instead of null")
	pf.Bool("clean", false, "strip spreadsheet artifacts from every CSV cell")
	pf.Bool("unique-checks", true, "reject duplicate keys during validation")

	root.AddCommand(
		newSchemasCommand(),
		newValidateCommand(),
		newLoadCommand(),
	)
	return root
}

// app holds what a command needs, built from configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *core.Service
	close   func()
}

// newApp loads configuration and schemas. Storage is opened only when
// withStorage is set, so validation works without a database.
func newApp(cmd *cobra.Command, withStorage bool) (*app, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	schemas, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	registry, err := schema.NewRegistry(schemas...)
	if err != nil {
		return nil, fmt.Errorf("register schemas: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, close: func() {}}
	var engine *persist.Engine
	if withStorage {
		db, err := store.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return nil, err
		}
		a.close = db.Close
		engine = persist.NewEngine(db, persist.WithLogger(logger))
	}

	a.service = core.NewService(registry, engine,
		core.WithLogger(logger),
		core.WithUniqueChecks(cfg.Ingest.UniqueChecks),
		core.WithIngestTimeout(cfg.Ingest.Timeout),
	)
	return a, nil
}
