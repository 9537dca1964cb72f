package persist

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// Path names the write strategy that handled a save.
type Path string

const (
	PathBulk   Path = "bulk"
	PathUpsert Path = "upsert"
)

// Recorder receives save outcomes, typically for metrics.
type Recorder interface {
	SaveCompleted(table string, path Path, rows int, elapsed time.Duration, err error)
	FallbackTriggered(table string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. By default the request-scoped logger from
// the context is used.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder reports save outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine saves datasets through a Backend. It holds no per-call state and
// is safe for concurrent use when the backend is.
type Engine struct {
	backend  Backend
	logger   *slog.Logger
	recorder Recorder
}

// NewEngine returns an engine writing through b.
func NewEngine(b Backend, opts ...Option) *Engine {
	e := &Engine{backend: b}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Save writes ds into the table of s.
//
// An empty dataset is a no-op that never touches the backend. Otherwise
// the rows are bulk-loaded; on any bulk failure they are upserted instead.
// When returning columns are requested the result is never nil: a bulk
// load cannot report rows, so it yields an empty list, while the upsert
// yields one map per inserted or updated row.
func (e *Engine) Save(ctx context.Context, ds *dataset.Dataset, s *schema.Schema, returning ...string) ([]map[string]any, error) {
	if ds == nil || ds.Len() == 0 {
		return emptyResult(returning), nil
	}

	batchID := uuid.NewString()
	rows := ds.Len()
	logger := e.log(ctx).With("table", s.Table(), "batch_id", batchID)

	start := time.Now()
	err := e.bulkLoad(ctx, ds, s)
	e.record(s.Table(), PathBulk, rows, time.Since(start), err)
	if err == nil {
		logger.Debug("bulk load committed", "rows", rows)
		return emptyResult(returning), nil
	}

	bulkErr := &BulkLoadError{Table: s.Table(), BatchID: batchID, Rows: rows, Err: err}
	logger.Warn("bulk load failed, falling back to upsert", "rows", rows, "error", err)
	if e.recorder != nil {
		e.recorder.FallbackTriggered(s.Table())
	}

	start = time.Now()
	result, err := e.upsert(ctx, ds, s, returning)
	e.record(s.Table(), PathUpsert, rows, time.Since(start), err)
	if err != nil {
		logger.Error("upsert failed", "rows", rows, "error", err)
		return nil, &FatalError{Table: s.Table(), BatchID: batchID, Bulk: bulkErr, Err: err}
	}
	logger.Info("upsert committed", "rows", rows, "returned", len(result))
	return result, nil
}

func (e *Engine) bulkLoad(ctx context.Context, ds *dataset.Dataset, s *schema.Schema) error {
	format := e.backend.BulkFormat()

	var buf bytes.Buffer
	if err := EncodeDataset(&buf, ds, format); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}

	tx, err := e.backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := tx.BulkLoad(ctx, s.Table(), ds.Columns(), &buf, format)
	if err != nil {
		return err
	}
	if n != int64(ds.Len()) {
		return fmt.Errorf("loaded %d of %d rows", n, ds.Len())
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (e *Engine) upsert(ctx context.Context, ds *dataset.Dataset, s *schema.Schema, returning []string) ([]map[string]any, error) {
	tx, err := e.backend.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, err := BuildUpsert(tx, ds, s, returning)
	if err != nil {
		return nil, fmt.Errorf("build upsert: %w", err)
	}

	var result []map[string]any
	if len(returning) == 0 {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, err
		}
	} else {
		rows, err := tx.Query(ctx, stmt)
		if err != nil {
			return nil, err
		}
		result = make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			rec := make(map[string]any, len(returning))
			for i, name := range returning {
				if i < len(row) {
					rec[name] = row[i]
				}
			}
			result = append(result, rec)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return logging.FromContext(ctx)
}

func (e *Engine) record(table string, path Path, rows int, elapsed time.Duration, err error) {
	if e.recorder != nil {
		e.recorder.SaveCompleted(table, path, rows, elapsed, err)
	}
}

func emptyResult(returning []string) []map[string]any {
	if len(returning) > 0 {
		return []map[string]any{}
	}
	return nil
}
