// Package validate turns raw tabular input into a typed dataset that
// conforms to a schema, or into a per-column error report.
//
// Validation collects valid rows and reports invalid ones: a bad value
// excludes its row, not its column, and the final dataset holds only the
// rows that passed every column. The one exception is input that is not
// tabular at all, which is rejected before any column is looked at.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// DatasetHook checks the reconciled dataset as a whole. Its issues are
// recorded under NonFieldErrors and never bring excluded rows back.
type DatasetHook func(ds *dataset.Dataset) []Issue

// Option configures a DatasetValidator.
type Option func(*DatasetValidator)

// WithColumnHook registers a post-processing hook for a column, by input
// name. It replaces any named hook from the schema.
func WithColumnHook(column string, hook ColumnHook) Option {
	return func(v *DatasetValidator) { v.hooks[column] = hook }
}

// WithDatasetHook adds a dataset-level check.
func WithDatasetHook(hook DatasetHook) Option {
	return func(v *DatasetValidator) { v.datasetHooks = append(v.datasetHooks, hook) }
}

// WithHookRegistry resolves the hook names referenced by schema columns.
func WithHookRegistry(reg *HookRegistry) Option {
	return func(v *DatasetValidator) { v.registry = reg }
}

// WithMessages overrides default messages for one column.
func WithMessages(column string, m Messages) Option {
	return func(v *DatasetValidator) { v.messages[column] = m }
}

// WithUniqueChecks adds a duplicate check for every unique group of the
// schema.
func WithUniqueChecks() Option {
	return func(v *DatasetValidator) { v.uniqueChecks = true }
}

// DatasetValidator validates one input against one schema. The result is
// computed once and cached; later calls return the same report and dataset.
type DatasetValidator struct {
	schema       *schema.Schema
	input        any
	columns      []*ColumnValidator
	hooks        map[string]ColumnHook
	datasetHooks []DatasetHook
	registry     *HookRegistry
	messages     map[string]Messages
	uniqueChecks bool

	once   sync.Once
	report *ErrorReport
	result *dataset.Dataset
}

// NewDatasetValidator prepares validation of input against s. Hooks named
// by schema columns are resolved here, once; an unknown name is an error.
func NewDatasetValidator(s *schema.Schema, input any, opts ...Option) (*DatasetValidator, error) {
	if s == nil {
		return nil, errors.New("validate: nil schema")
	}
	v := &DatasetValidator{
		schema:   s,
		input:    input,
		hooks:    make(map[string]ColumnHook),
		messages: make(map[string]Messages),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.registry == nil {
		v.registry = NewHookRegistry()
	}

	for _, spec := range s.Columns() {
		v.columns = append(v.columns, NewColumnValidator(spec, v.messages[spec.Name]))
		if spec.Hook == "" {
			continue
		}
		if _, explicit := v.hooks[spec.Name]; explicit {
			continue
		}
		hook, ok := v.registry.Lookup(spec.Hook)
		if !ok {
			return nil, fmt.Errorf("validate: column %s: unknown hook %q", spec.Name, spec.Hook)
		}
		v.hooks[spec.Name] = hook
	}

	if v.uniqueChecks {
		for _, group := range s.UniqueGroups() {
			v.datasetHooks = append(v.datasetHooks, UniqueTogether(group...))
		}
	}
	return v, nil
}

// Validate runs validation on first call and returns the cached result
// afterwards. The dataset is returned even when the report is not empty,
// for inspection; it must not be persisted in that case.
func (v *DatasetValidator) Validate() (*ErrorReport, *dataset.Dataset) {
	v.once.Do(v.run)
	return v.report, v.result
}

// IsValid reports whether validation produced no issues.
func (v *DatasetValidator) IsValid() bool {
	report, _ := v.Validate()
	return report.Empty()
}

// Errors returns the validation report.
func (v *DatasetValidator) Errors() *ErrorReport {
	report, _ := v.Validate()
	return report
}

// Dataset returns the validated dataset.
func (v *DatasetValidator) Dataset() *dataset.Dataset {
	_, ds := v.Validate()
	return ds
}

func (v *DatasetValidator) run() {
	report := NewErrorReport()

	tab, ok := v.input.(dataset.Tabular)
	if !ok || isNilPointer(v.input) {
		report.Add(NonFieldErrors, Issue{
			Code:    CodeInvalid,
			Message: datasetMessages.Format(CodeInvalid, map[string]string{"datatype": typeName(v.input)}),
		})
		v.report, v.result = report, dataset.New(nil)
		return
	}

	n := tab.Len()
	index := rowIndex(tab)

	if n == 0 {
		ds := dataset.New(nil)
		for _, cv := range v.columns {
			spec := cv.Spec()
			_ = ds.Add(&dataset.Column{Name: spec.Target(), Kind: spec.Kind, Values: []any{}})
		}
		v.report, v.result = report, ds
		return
	}

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	var accepted []*dataset.Column

	// Every column runs, even after an earlier one has excluded all rows.
	for _, cv := range v.columns {
		spec := cv.Spec()
		res := v.validateColumn(tab, cv, index)
		report.Add(spec.Name, res.Issues...)

		switch res.Outcome {
		case OutcomeSkip:
			continue
		case OutcomeFail:
			for i := range keep {
				keep[i] = false
			}
			continue
		}
		for i, ok := range res.Valid {
			if !ok {
				keep[i] = false
			}
		}
		accepted = append(accepted, res.Column)
	}

	positions := make([]int, 0, n)
	for i, ok := range keep {
		if ok {
			positions = append(positions, i)
		}
	}
	rows := make([]int, len(positions))
	for i, p := range positions {
		rows[i] = index[p]
	}

	ds := dataset.New(rows)
	for _, col := range accepted {
		if err := ds.Add(col.Take(positions)); err != nil {
			report.Add(NonFieldErrors, Issue{Code: CodeInvalid, Message: err.Error()})
		}
	}

	for _, hook := range v.datasetHooks {
		report.Add(NonFieldErrors, hook(ds)...)
	}

	v.report, v.result = report, ds
}

func (v *DatasetValidator) validateColumn(tab dataset.Tabular, cv *ColumnValidator, index []int) ColumnResult {
	spec := cv.Spec()
	raw, present := tab.Column(spec.Name)
	if !present && spec.Target() != spec.Name {
		// Validated datasets are keyed by target name.
		raw, present = tab.Column(spec.Target())
	}

	var res ColumnResult
	switch {
	case !present:
		res = cv.ValidateMissing(index)
	case len(raw) != len(index):
		return ColumnResult{
			Outcome: OutcomeFail,
			Issues: []Issue{{
				Code:    CodeInvalid,
				Message: fmt.Sprintf("Column has %d values, expected %d", len(raw), len(index)),
			}},
		}
	default:
		res = cv.Validate(raw, index)
	}

	if hook, ok := v.hooks[spec.Name]; ok && res.Outcome == OutcomeOK {
		res = applyHook(hook, res, index)
	}
	return res
}

// applyHook runs hook over the valid rows of res and folds its result back.
func applyHook(hook ColumnHook, res ColumnResult, index []int) ColumnResult {
	positions := res.ValidPositions()
	in := make([]any, len(positions))
	for i, p := range positions {
		in[i] = res.Column.Values[p]
	}

	out, err := hook(in)

	var rowErr *RowError
	switch {
	case errors.As(err, &rowErr):
		var rows []int
		for _, r := range rowErr.Rows {
			if r >= 0 && r < len(positions) {
				res.Valid[positions[r]] = false
				rows = append(rows, index[positions[r]])
			}
		}
		res.Issues = append(res.Issues, Issue{Code: CodeInvalid, Message: rowErr.Message, Rows: rows})
	case err != nil:
		return ColumnResult{
			Outcome: OutcomeFail,
			Issues:  append(res.Issues, Issue{Code: CodeInvalid, Message: err.Error()}),
		}
	}

	if out == nil {
		return res
	}
	if len(out) != len(in) {
		return ColumnResult{
			Outcome: OutcomeFail,
			Issues: append(res.Issues, Issue{
				Code:    CodeInvalid,
				Message: fmt.Sprintf("Column hook returned %d values for %d rows", len(out), len(in)),
			}),
		}
	}
	for i, p := range positions {
		if res.Valid[p] {
			res.Column.Values[p] = out[i]
		}
	}
	return res
}

// UniqueTogether reports rows whose values in columns repeat an earlier
// row. Nulls compare equal, matching how upserts coalesce nullable keys.
// Columns missing from the dataset disable the check.
func UniqueTogether(columns ...string) DatasetHook {
	return func(ds *dataset.Dataset) []Issue {
		cols := make([][]any, len(columns))
		for i, name := range columns {
			vals, ok := ds.Column(name)
			if !ok {
				return nil
			}
			cols[i] = vals
		}

		index := ds.Index()
		seen := make(map[string]bool, ds.Len())
		var dups []int
		var key strings.Builder
		for row := 0; row < ds.Len(); row++ {
			key.Reset()
			for _, vals := range cols {
				fmt.Fprintf(&key, "%T:%v\x00", vals[row], vals[row])
			}
			k := key.String()
			if seen[k] {
				dups = append(dups, index[row])
				continue
			}
			seen[k] = true
		}
		if len(dups) == 0 {
			return nil
		}
		return []Issue{{
			Code:    CodeDuplicated,
			Message: datasetMessages.Format(CodeDuplicated, map[string]string{"columns": strings.Join(columns, ", ")}),
			Rows:    dups,
		}}
	}
}

func rowIndex(tab dataset.Tabular) []int {
	if ix, ok := tab.(dataset.Indexed); ok {
		if index := ix.Index(); len(index) == tab.Len() {
			return index
		}
	}
	index := make([]int, tab.Len())
	for i := range index {
		index[i] = i
	}
	return index
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
