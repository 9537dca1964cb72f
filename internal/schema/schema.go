// Package schema declares what a dataset must look like: the ordered column
// specs of an entity, its physical table, unique constraints, primary key
// and managed columns.
//
// A Schema is immutable once built by New. Definitions usually come from
// YAML files (see LoadDir) and are served by a Registry.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// ColumnSpec describes one declared column.
type ColumnSpec struct {
	// Name is the column name in the raw input and the key used in error
	// reports.
	Name string

	// Source is the column name in the validated dataset and the table.
	// Empty means Name, or Name+"_id" for relation columns.
	Source string

	// Relation marks a foreign-key column whose table column carries the
	// "_id" suffix.
	Relation bool

	Kind dataset.Kind

	Required   bool
	AllowNull  bool
	AllowBlank bool

	// KeepWhitespace disables trimming of string values.
	KeepWhitespace bool

	// RejectEmpty rejects empty lists.
	RejectEmpty bool

	// Default fills a missing, non-required column. Nil means no default.
	Default any

	// ReplaceNull substitutes null values before coercion. Only valid
	// together with AllowNull.
	ReplaceNull any

	MinValue  *float64
	MaxValue  *float64
	MinLength *int
	MaxLength *int

	// Format is the time layout for date and datetime columns.
	Format string

	// Child validates list elements. Nil passes elements through.
	Child *ColumnSpec

	// Hook names a post-processing hook applied after coercion.
	Hook string

	// Managed excludes the column from upsert updates.
	Managed bool

	// ConflictSentinel replaces NULL in the upsert conflict target when
	// the column is nullable and part of it. Nil picks a default per kind.
	ConflictSentinel any
}

// Target returns the dataset and table column name.
func (c ColumnSpec) Target() string {
	switch {
	case c.Source != "":
		return c.Source
	case c.Relation:
		return c.Name + "_id"
	default:
		return c.Name
	}
}

// Nullable reports whether the stored column may hold NULL.
func (c ColumnSpec) Nullable() bool {
	return c.AllowNull && c.ReplaceNull == nil
}

// Definition is the mutable input to New.
type Definition struct {
	Entity     string
	Table      string
	PrimaryKey string
	Columns    []ColumnSpec
	Unique     [][]string
	Managed    []string
}

// Schema is a validated, immutable Definition.
type Schema struct {
	entity     string
	table      string
	primaryKey string
	columns    []ColumnSpec
	byName     map[string]int
	byTarget   map[string]int
	unique     [][]string
	managed    map[string]bool
}

// New validates def and builds a Schema. All problems are reported at once.
func New(def Definition) (*Schema, error) {
	s := &Schema{
		entity:     strings.TrimSpace(def.Entity),
		table:      strings.TrimSpace(def.Table),
		primaryKey: strings.TrimSpace(def.PrimaryKey),
		byName:     make(map[string]int, len(def.Columns)),
		byTarget:   make(map[string]int, len(def.Columns)),
		managed:    make(map[string]bool),
	}
	if s.table == "" {
		s.table = s.entity
	}

	var errs []error
	if s.entity == "" {
		errs = append(errs, errors.New("entity is required"))
	}
	if len(def.Columns) == 0 {
		errs = append(errs, errors.New("at least one column is required"))
	}

	for i, col := range def.Columns {
		col = cloneSpec(col)
		if err := checkColumn(col, false); err != nil {
			errs = append(errs, err)
		}
		if _, dup := s.byName[col.Name]; dup {
			errs = append(errs, fmt.Errorf("column %q: declared twice", col.Name))
		}
		if _, dup := s.byTarget[col.Target()]; dup {
			errs = append(errs, fmt.Errorf("column %q: source %q already used", col.Name, col.Target()))
		}
		s.byName[col.Name] = i
		s.byTarget[col.Target()] = i
		s.columns = append(s.columns, col)
		if col.Managed {
			s.managed[col.Target()] = true
		}
	}

	for _, group := range def.Unique {
		if len(group) == 0 {
			errs = append(errs, errors.New("unique group is empty"))
			continue
		}
		targets := make([]string, 0, len(group))
		for _, name := range group {
			target, ok := s.resolveTarget(name)
			if !ok {
				errs = append(errs, fmt.Errorf("unique group %v: unknown column %q", group, name))
				continue
			}
			targets = append(targets, target)
		}
		s.unique = append(s.unique, targets)
	}

	if s.primaryKey != "" {
		s.managed[s.primaryKey] = true
	}
	for _, name := range def.Managed {
		s.managed[strings.TrimSpace(name)] = true
	}

	if len(errs) > 0 {
		label := s.entity
		if label == "" {
			label = "<unnamed>"
		}
		return nil, fmt.Errorf("schema %s: %w", label, errors.Join(errs...))
	}
	return s, nil
}

// resolveTarget maps a column named by input name or by table column to
// its table column.
func (s *Schema) resolveTarget(name string) (string, bool) {
	if i, ok := s.byName[name]; ok {
		return s.columns[i].Target(), true
	}
	if i, ok := s.byTarget[name]; ok {
		return s.columns[i].Target(), true
	}
	return "", false
}

// checkColumn validates a single spec. Children skip the name checks.
func checkColumn(col ColumnSpec, child bool) error {
	var errs []error
	label := col.Name
	if child {
		label += " (child)"
	}
	if !child && strings.TrimSpace(col.Name) == "" {
		return errors.New("column name is required")
	}

	switch col.Kind {
	case dataset.KindInvalid:
		errs = append(errs, errors.New("kind is required"))
	case dataset.KindDate, dataset.KindDateTime:
		if col.Format == "" {
			errs = append(errs, fmt.Errorf("format is required for %s columns", col.Kind))
		}
	case dataset.KindList:
		if col.Child != nil {
			if err := checkColumn(*col.Child, true); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if col.ReplaceNull != nil && !col.AllowNull {
		errs = append(errs, errors.New("replace_null requires allow_null"))
	}
	if col.MinValue != nil && col.MaxValue != nil && *col.MinValue > *col.MaxValue {
		errs = append(errs, fmt.Errorf("min_value %v exceeds max_value %v", *col.MinValue, *col.MaxValue))
	}
	if col.MinLength != nil && col.MaxLength != nil && *col.MinLength > *col.MaxLength {
		errs = append(errs, fmt.Errorf("min_length %d exceeds max_length %d", *col.MinLength, *col.MaxLength))
	}
	if (col.MinValue != nil || col.MaxValue != nil) && col.Kind != dataset.KindInteger && col.Kind != dataset.KindFloat {
		errs = append(errs, fmt.Errorf("value range is not supported for %s columns", col.Kind))
	}
	if (col.MinLength != nil || col.MaxLength != nil) && col.Kind != dataset.KindString && col.Kind != dataset.KindList {
		errs = append(errs, fmt.Errorf("length range is not supported for %s columns", col.Kind))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("column %s: %w", label, errors.Join(errs...))
}

func cloneSpec(c ColumnSpec) ColumnSpec {
	c.MinValue = clonePtr(c.MinValue)
	c.MaxValue = clonePtr(c.MaxValue)
	c.MinLength = clonePtr(c.MinLength)
	c.MaxLength = clonePtr(c.MaxLength)
	if c.Child != nil {
		child := cloneSpec(*c.Child)
		c.Child = &child
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Entity returns the logical entity name.
func (s *Schema) Entity() string { return s.entity }

// Table returns the physical table name, possibly schema-qualified.
func (s *Schema) Table() string { return s.table }

// PrimaryKey returns the primary key column, or "".
func (s *Schema) PrimaryKey() string { return s.primaryKey }

// Columns returns a copy of the ordered column specs.
func (s *Schema) Columns() []ColumnSpec {
	out := make([]ColumnSpec, len(s.columns))
	for i, c := range s.columns {
		out[i] = cloneSpec(c)
	}
	return out
}

// Column looks a spec up by input name.
func (s *Schema) Column(name string) (ColumnSpec, bool) {
	i, ok := s.byName[name]
	if !ok {
		return ColumnSpec{}, false
	}
	return cloneSpec(s.columns[i]), true
}

// ColumnByTarget looks a spec up by dataset/table column name.
func (s *Schema) ColumnByTarget(target string) (ColumnSpec, bool) {
	i, ok := s.byTarget[target]
	if !ok {
		return ColumnSpec{}, false
	}
	return cloneSpec(s.columns[i]), true
}

// UniqueGroups returns a copy of the unique-constraint column groups.
func (s *Schema) UniqueGroups() [][]string {
	out := make([][]string, len(s.unique))
	for i, g := range s.unique {
		out[i] = slices.Clone(g)
	}
	return out
}

// IsManaged reports whether a table column is excluded from upsert updates.
func (s *Schema) IsManaged(column string) bool { return s.managed[column] }

// Managed returns the managed column names, sorted.
func (s *Schema) Managed() []string {
	out := make([]string, 0, len(s.managed))
	for name := range s.managed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
