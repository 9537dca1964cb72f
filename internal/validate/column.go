package validate

import (
	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// Outcome is the column-level verdict of a ColumnValidator.
type Outcome int

const (
	// OutcomeOK means the column is accepted. Individual rows may still be
	// excluded; see ColumnResult.Valid.
	OutcomeOK Outcome = iota
	// OutcomeSkip drops the column without an error.
	OutcomeSkip
	// OutcomeFail drops the column and records errors. No row passes a
	// failed column.
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkip:
		return "skip"
	case OutcomeFail:
		return "fail"
	}
	return "unknown"
}

// ColumnResult is the outcome of validating one column. Column and Valid
// are aligned with the input rows; a row's value is only meaningful where
// Valid is true.
type ColumnResult struct {
	Outcome Outcome
	Column  *dataset.Column
	Valid   []bool
	Issues  []Issue
}

// ValidPositions returns the input positions of rows that passed.
func (r ColumnResult) ValidPositions() []int {
	out := make([]int, 0, len(r.Valid))
	for i, ok := range r.Valid {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// ColumnValidator coerces one raw column to its declared kind and applies
// null, default, range and length rules. It has no side effects.
type ColumnValidator struct {
	spec        schema.ColumnSpec
	messages    Messages
	coerce      coercer
	constraints []Constraint
	child       *ColumnValidator
}

// NewColumnValidator builds a validator for spec. overrides replace
// default messages by code.
func NewColumnValidator(spec schema.ColumnSpec, overrides Messages) *ColumnValidator {
	v := &ColumnValidator{
		spec:        spec,
		messages:    MessagesFor(spec.Kind, overrides),
		constraints: constraintsFor(spec),
	}
	if spec.Kind == dataset.KindList {
		if spec.Child != nil {
			v.child = NewColumnValidator(*spec.Child, nil)
		}
	} else {
		v.coerce = coercerFor(spec)
	}
	return v
}

// Spec returns the column spec the validator enforces.
func (v *ColumnValidator) Spec() schema.ColumnSpec { return v.spec }

// issueSet gathers failing rows per code, keeping first-seen code order.
type issueSet struct {
	order []Code
	rows  map[Code][]int
}

func (s *issueSet) add(code Code, row int) {
	if s.rows == nil {
		s.rows = make(map[Code][]int)
	}
	if _, ok := s.rows[code]; !ok {
		s.order = append(s.order, code)
	}
	s.rows[code] = append(s.rows[code], row)
}

// ValidateMissing handles a column that is absent from the input.
func (v *ColumnValidator) ValidateMissing(index []int) ColumnResult {
	if v.spec.Required {
		return ColumnResult{
			Outcome: OutcomeFail,
			Issues:  []Issue{{Code: CodeRequired, Message: v.messages.Format(CodeRequired, nil)}},
		}
	}
	if v.spec.Default == nil {
		return ColumnResult{Outcome: OutcomeSkip}
	}
	values := make([]any, len(index))
	for i := range values {
		values[i] = v.spec.Default
	}
	return v.Validate(values, index)
}

// Validate coerces values. index holds the original row position of each
// value and is used in issues; nil numbers rows from zero.
func (v *ColumnValidator) Validate(values []any, index []int) ColumnResult {
	n := len(values)
	pos := func(i int) int {
		if index == nil {
			return i
		}
		return index[i]
	}

	out := make([]any, n)
	valid := make([]bool, n)
	isNull := make([]bool, n)
	var nulls []int

	// Nulls first: replace, reject, or pass through.
	for i, raw := range values {
		valid[i] = true
		if !dataset.IsNull(raw) {
			out[i] = raw
			continue
		}
		switch {
		case v.spec.ReplaceNull != nil:
			out[i] = v.spec.ReplaceNull
		case !v.spec.AllowNull:
			valid[i] = false
			nulls = append(nulls, pos(i))
		default:
			isNull[i] = true
		}
	}

	var issues []Issue
	if len(nulls) > 0 {
		issues = append(issues, Issue{Code: CodeNull, Message: v.messages.Format(CodeNull, nil), Rows: nulls})
	}

	// Coercion.
	var failed issueSet
	var nested []Issue
	for i := range out {
		if !valid[i] || isNull[i] {
			continue
		}
		var (
			val  any
			code Code
		)
		if v.spec.Kind == dataset.KindList {
			var cellIssue *Issue
			val, code, cellIssue = v.coerceList(out[i], pos(i))
			if cellIssue != nil {
				nested = append(nested, *cellIssue)
			}
		} else {
			val, code = v.coerce(out[i])
		}
		if code != "" {
			valid[i] = false
			out[i] = nil
			if code != CodeNested {
				failed.add(code, pos(i))
			}
			continue
		}
		out[i] = val
	}
	params := map[string]string{"format": v.spec.Format}
	for _, code := range failed.order {
		issues = append(issues, Issue{Code: code, Message: v.messages.Format(code, params), Rows: failed.rows[code]})
	}
	issues = append(issues, nested...)

	// Constraints, in declared order, each narrowing the valid subset.
	for _, c := range v.constraints {
		var rows []int
		for i := range out {
			if !valid[i] || isNull[i] {
				continue
			}
			if !c.Check(out[i]) {
				valid[i] = false
				rows = append(rows, pos(i))
			}
		}
		if len(rows) > 0 {
			issues = append(issues, Issue{Code: c.Code, Message: v.messages.Format(c.Code, c.Params), Rows: rows})
		}
	}

	return ColumnResult{
		Outcome: OutcomeOK,
		Column:  &dataset.Column{Name: v.spec.Target(), Kind: v.spec.Kind, Values: out},
		Valid:   valid,
		Issues:  issues,
	}
}

// coerceList validates one list cell as an independent sub-column. A cell
// with failing elements yields a nested issue keyed by its row.
func (v *ColumnValidator) coerceList(raw any, row int) (any, Code, *Issue) {
	items, ok := asList(raw)
	if !ok {
		return nil, CodeNotAList, nil
	}
	if len(items) == 0 && v.spec.RejectEmpty {
		return nil, CodeEmpty, nil
	}
	if v.child == nil {
		return append([]any{}, items...), "", nil
	}

	res := v.child.Validate(items, nil)
	if len(res.Issues) > 0 {
		return nil, CodeNested, &Issue{
			Code:    CodeNested,
			Message: v.messages.Format(CodeNested, nil),
			Rows:    []int{row},
			Nested:  res.Issues,
		}
	}
	return res.Column.Values, "", nil
}
