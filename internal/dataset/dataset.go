package dataset

import (
	"fmt"
	"math"
	"slices"
)

// Tabular is the structural contract for validator input. Anything that is
// not Tabular is rejected before any column is looked at.
type Tabular interface {
	// Columns returns the column names present in the input.
	Columns() []string
	// Column returns the values for name, and whether it is present.
	Column(name string) ([]any, bool)
	// Len returns the row count.
	Len() int
}

// Indexed is implemented by inputs that carry their own row positions.
// Validators preserve those positions instead of numbering rows from zero.
type Indexed interface {
	Index() []int
}

// Raw is loosely-typed tabular input, stored column-major. Values may be
// nil, string, bool, any Go number, json.Number, time.Time or []any.
type Raw struct {
	names  []string
	values map[string][]any
	rows   int
}

// NewRaw builds a Raw from a header and row-major records. Short records
// are padded with nil; long records are an error.
func NewRaw(header []string, records [][]any) (*Raw, error) {
	r := &Raw{
		names:  make([]string, 0, len(header)),
		values: make(map[string][]any, len(header)),
		rows:   len(records),
	}
	for _, name := range header {
		if _, dup := r.values[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		r.names = append(r.names, name)
		r.values[name] = make([]any, len(records))
	}
	for i, rec := range records {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d values, header has %d columns", i, len(rec), len(header))
		}
		for j, v := range rec {
			r.values[header[j]][i] = v
		}
	}
	return r, nil
}

// RawFromColumns builds a Raw from column-major data. order fixes the
// column order; columns missing from order are appended sorted.
func RawFromColumns(columns map[string][]any, order []string) (*Raw, error) {
	r := &Raw{values: make(map[string][]any, len(columns)), rows: -1}
	seen := make(map[string]bool, len(columns))
	for _, name := range order {
		if _, ok := columns[name]; ok && !seen[name] {
			r.names = append(r.names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range columns {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	r.names = append(r.names, rest...)

	for _, name := range r.names {
		vals := columns[name]
		if r.rows >= 0 && len(vals) != r.rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", name, len(vals), r.rows)
		}
		r.rows = len(vals)
		r.values[name] = vals
	}
	if r.rows < 0 {
		r.rows = 0
	}
	return r, nil
}

func (r *Raw) Columns() []string { return slices.Clone(r.names) }

func (r *Raw) Column(name string) ([]any, bool) {
	v, ok := r.values[name]
	return v, ok
}

func (r *Raw) Len() int { return r.rows }

// Column is one typed column of a Dataset.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Len returns the number of values in the column.
func (c *Column) Len() int { return len(c.Values) }

// Take returns a new column holding the values at positions.
func (c *Column) Take(positions []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Values: make([]any, len(positions))}
	for i, p := range positions {
		out.Values[i] = c.Values[p]
	}
	return out
}

// Dataset is an ordered set of equal-length typed columns plus the
// original row position of every row.
type Dataset struct {
	names []string
	cols  map[string]*Column
	index []int
}

// New creates an empty dataset whose rows carry the given original
// positions. A nil index means zero rows.
func New(index []int) *Dataset {
	return &Dataset{
		cols:  make(map[string]*Column),
		index: slices.Clone(index),
	}
}

// Add appends a column. Its length must equal the dataset row count and
// its name must be unique.
func (d *Dataset) Add(col *Column) error {
	if col.Len() != len(d.index) {
		return fmt.Errorf("column %q has %d values, dataset has %d rows", col.Name, col.Len(), len(d.index))
	}
	if _, dup := d.cols[col.Name]; dup {
		return fmt.Errorf("duplicate column %q", col.Name)
	}
	d.names = append(d.names, col.Name)
	d.cols[col.Name] = col
	return nil
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string { return slices.Clone(d.names) }

// Column returns the values of a column, satisfying Tabular so a validated
// dataset can be validated again.
func (d *Dataset) Column(name string) ([]any, bool) {
	c, ok := d.cols[name]
	if !ok {
		return nil, false
	}
	return c.Values, true
}

// Typed returns the typed column.
func (d *Dataset) Typed(name string) (*Column, bool) {
	c, ok := d.cols[name]
	return c, ok
}

// Len returns the row count. A dataset with no columns has no rows.
func (d *Dataset) Len() int {
	if len(d.names) == 0 {
		return 0
	}
	return len(d.index)
}

// Index returns the original row positions.
func (d *Dataset) Index() []int { return slices.Clone(d.index) }

// Row returns the values of row i in column order.
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.names))
	for j, name := range d.names {
		row[j] = d.cols[name].Values[i]
	}
	return row
}

// Records returns all rows as maps keyed by column name.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, d.Len())
	for i := range out {
		rec := make(map[string]any, len(d.names))
		for _, name := range d.names {
			rec[name] = d.cols[name].Values[i]
		}
		out[i] = rec
	}
	return out
}

// IsNull reports whether v counts as a missing value. Float NaN is null,
// matching what spreadsheet and dataframe exports emit for empty cells.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}
