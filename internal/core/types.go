package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
	"github.com/JonMunkholm/tabload/internal/validate"
)

// ErrUnknownEntity is returned when no schema is registered for an entity.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrUnknownReturning is returned when a requested returning column is not
// part of the schema.
var ErrUnknownReturning = errors.New("unknown returning column")

// ErrNoStorage is returned by Ingest on a service built without an engine.
var ErrNoStorage = errors.New("no storage configured")

// ValidationFailedError rejects an ingest whose validation report is not
// empty. Nothing was saved.
type ValidationFailedError struct {
	Entity string
	Report *validate.ErrorReport
}

func (e *ValidationFailedError) Error() string {
	if e.Report.Structural() {
		return fmt.Sprintf("validation failed for %s: input is not a dataset", e.Entity)
	}
	return fmt.Sprintf("validation failed for %s: %d columns with errors", e.Entity, e.Report.Len())
}

// ValidationResult is the outcome of a dry run.
type ValidationResult struct {
	Entity       string
	RowsReceived int
	RowsValid    int
	Report       *validate.ErrorReport
	Dataset      *dataset.Dataset
	Duration     time.Duration
}

// Valid reports whether every row passed.
func (r *ValidationResult) Valid() bool { return r.Report.Empty() }

// IngestResult is the outcome of a successful ingest.
type IngestResult struct {
	ID           string
	Entity       string
	Table        string
	RowsReceived int
	RowsSaved    int
	Returned     []map[string]any
	Duration     time.Duration
}

// ColumnInfo describes one schema column for listings.
type ColumnInfo struct {
	Name      string       `json:"name"`
	Target    string       `json:"target"`
	Kind      dataset.Kind `json:"kind"`
	Required  bool         `json:"required"`
	AllowNull bool         `json:"allow_null"`
	Format    string       `json:"format,omitempty"`
	Hook      string       `json:"hook,omitempty"`
	Managed   bool         `json:"managed,omitempty"`
}

// SchemaInfo describes a registered schema for listings.
type SchemaInfo struct {
	Entity     string       `json:"entity"`
	Table      string       `json:"table"`
	PrimaryKey string       `json:"primary_key,omitempty"`
	Columns    []ColumnInfo `json:"columns"`
	Unique     [][]string   `json:"unique,omitempty"`
}

// describe builds the listing view of s.
func describe(s *schema.Schema) SchemaInfo {
	info := SchemaInfo{
		Entity:     s.Entity(),
		Table:      s.Table(),
		PrimaryKey: s.PrimaryKey(),
		Unique:     s.UniqueGroups(),
	}
	for _, c := range s.Columns() {
		info.Columns = append(info.Columns, ColumnInfo{
			Name:      c.Name,
			Target:    c.Target(),
			Kind:      c.Kind,
			Required:  c.Required,
			AllowNull: c.AllowNull,
			Format:    c.Format,
			Hook:      c.Hook,
			Managed:   s.IsManaged(c.Target()),
		})
	}
	return info
}
