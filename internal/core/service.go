package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/persist"
	"github.com/JonMunkholm/tabload/internal/schema"
	"github.com/JonMunkholm/tabload/internal/validate"
)

// DefaultIngestTimeout is the maximum duration of one ingest.
const DefaultIngestTimeout = 10 * time.Minute

// ValidationRecorder receives validation outcomes. Implemented by the
// metrics package.
type ValidationRecorder interface {
	ValidationCompleted(entity string, valid bool, rowsReceived, rowsRejected int, elapsed time.Duration)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHooks sets the registry that resolves hook names used by schemas.
func WithHooks(h *validate.HookRegistry) ServiceOption {
	return func(s *Service) { s.hooks = h }
}

// WithLimiter bounds concurrent ingests.
func WithLimiter(l *IngestLimiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// WithUniqueChecks enables in-batch duplicate checks on schema unique groups.
func WithUniqueChecks(enabled bool) ServiceOption {
	return func(s *Service) { s.uniqueChecks = enabled }
}

// WithValidationRecorder reports validation outcomes to r.
func WithValidationRecorder(r ValidationRecorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithIngestTimeout overrides DefaultIngestTimeout. Zero disables it.
func WithIngestTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithLogger sets the service logger. By default the request logger from
// the context is used.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service validates uploads against registered schemas and saves them.
// Safe for concurrent use.
type Service struct {
	registry     *schema.Registry
	engine       *persist.Engine
	hooks        *validate.HookRegistry
	limiter      *IngestLimiter
	uniqueChecks bool
	recorder     ValidationRecorder
	timeout      time.Duration
	logger       *slog.Logger
}

// NewService creates a Service. engine may be nil for a validate-only
// service; Ingest then fails with ErrNoStorage.
func NewService(registry *schema.Registry, engine *persist.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		registry: registry,
		engine:   engine,
		timeout:  DefaultIngestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = validate.NewHookRegistry()
	}
	return s
}

// Schemas lists the registered schemas, sorted by entity.
func (s *Service) Schemas() []SchemaInfo {
	all := s.registry.All()
	infos := make([]SchemaInfo, len(all))
	for i, sc := range all {
		infos[i] = describe(sc)
	}
	return infos
}

// Schema describes one registered schema.
func (s *Service) Schema(entity string) (SchemaInfo, error) {
	sc, err := s.lookup(entity)
	if err != nil {
		return SchemaInfo{}, err
	}
	return describe(sc), nil
}

// Limiter returns the ingest limiter, or nil.
func (s *Service) Limiter() *IngestLimiter { return s.limiter }

// Validate runs validation only. The result carries the report and the
// dataset of rows that passed; nothing is saved.
func (s *Service) Validate(ctx context.Context, entity string, input any) (*ValidationResult, error) {
	sc, err := s.lookup(entity)
	if err != nil {
		return nil, err
	}
	return s.validate(ctx, sc, input)
}

// Ingest validates input and saves it. Any validation issue rejects the
// whole upload with a *ValidationFailedError. returning names columns,
// by input or table name, whose saved values are returned.
func (s *Service) Ingest(ctx context.Context, entity string, input any, returning []string) (*IngestResult, error) {
	if s.engine == nil {
		return nil, ErrNoStorage
	}
	sc, err := s.lookup(entity)
	if err != nil {
		return nil, err
	}
	targets, err := returningTargets(sc, returning)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	logger := s.log(ctx).With(append([]any{"ingest_id", id, "entity", entity}, clientAttrs(ctx)...)...)
	start := time.Now()

	vr, err := s.validate(ctx, sc, input)
	if err != nil {
		return nil, err
	}
	if !vr.Valid() {
		logger.Info("ingest rejected", "rows", vr.RowsReceived, "columns_with_errors", vr.Report.Len())
		return nil, &ValidationFailedError{Entity: entity, Report: vr.Report}
	}

	returned, err := s.engine.Save(ctx, vr.Dataset, sc, targets...)
	if err != nil {
		logger.Error("ingest failed", "rows", vr.RowsValid, "error", err)
		return nil, fmt.Errorf("ingest %s: %w", entity, err)
	}

	result := &IngestResult{
		ID:           id,
		Entity:       entity,
		Table:        sc.Table(),
		RowsReceived: vr.RowsReceived,
		RowsSaved:    vr.RowsValid,
		Returned:     returned,
		Duration:     time.Since(start),
	}
	logger.Info("ingest completed",
		"table", result.Table,
		"rows", result.RowsSaved,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) validate(ctx context.Context, sc *schema.Schema, input any) (*ValidationResult, error) {
	opts := []validate.Option{validate.WithHookRegistry(s.hooks)}
	if s.uniqueChecks {
		opts = append(opts, validate.WithUniqueChecks())
	}
	v, err := validate.NewDatasetValidator(sc, input, opts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report, ds := v.Validate()
	result := &ValidationResult{
		Entity:    sc.Entity(),
		RowsValid: ds.Len(),
		Report:    report,
		Dataset:   ds,
		Duration:  time.Since(start),
	}
	if tab, ok := input.(dataset.Tabular); ok && !report.Structural() {
		result.RowsReceived = tab.Len()
	}

	if s.recorder != nil {
		s.recorder.ValidationCompleted(sc.Entity(), result.Valid(), result.RowsReceived,
			result.RowsReceived-result.RowsValid, result.Duration)
	}
	s.log(ctx).Debug("validation finished",
		"entity", sc.Entity(),
		"rows", result.RowsReceived,
		"valid_rows", result.RowsValid,
		"columns_with_errors", report.Len(),
	)
	return result, nil
}

func (s *Service) lookup(entity string) (*schema.Schema, error) {
	sc, ok := s.registry.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return sc, nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.FromContext(ctx)
}

// returningTargets maps requested returning columns to table column names.
// A name is looked up as an input name first, then as a table name.
func returningTargets(sc *schema.Schema, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	targets := make([]string, 0, len(names))
	for _, name := range names {
		if c, ok := sc.Column(name); ok {
			targets = append(targets, c.Target())
			continue
		}
		if c, ok := sc.ColumnByTarget(name); ok {
			targets = append(targets, c.Target())
			continue
		}
		return nil, fmt.Errorf("%w %q for %s", ErrUnknownReturning, name, sc.Entity())
	}
	return targets, nil
}
