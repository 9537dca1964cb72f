package validate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// NonFieldErrors is the report key for dataset-level errors.
const NonFieldErrors = "non_field_errors"

// maxListedRows caps how many row positions an issue names in its text.
const maxListedRows = 10

// Issue is one validation failure: what went wrong and where. Rows holds
// original row positions; it is empty when the issue concerns the column
// as a whole.
type Issue struct {
	Code    Code    `json:"code"`
	Message string  `json:"message"`
	Rows    []int   `json:"rows,omitempty"`
	Nested  []Issue `json:"nested,omitempty"`
}

// String renders the issue for humans.
func (i Issue) String() string {
	if i.Code == CodeNested && len(i.Nested) > 0 {
		parts := make([]string, len(i.Nested))
		for j, n := range i.Nested {
			parts[j] = n.String()
		}
		prefix := "element"
		if len(i.Rows) == 1 {
			prefix = "row " + strconv.Itoa(i.Rows[0])
		}
		return prefix + ": " + strings.Join(parts, "; ")
	}
	if len(i.Rows) == 0 {
		return i.Message
	}
	return i.Message + " (" + formatRows(i.Rows) + ")"
}

func formatRows(rows []int) string {
	shown := rows
	if len(shown) > maxListedRows {
		shown = shown[:maxListedRows]
	}
	parts := make([]string, len(shown))
	for i, r := range shown {
		parts[i] = strconv.Itoa(r)
	}
	label := "rows "
	if len(rows) == 1 {
		label = "row "
	}
	s := label + strings.Join(parts, ", ")
	if extra := len(rows) - len(shown); extra > 0 {
		s += fmt.Sprintf(" and %d more", extra)
	}
	return s
}

// ErrorReport collects issues per column, plus dataset-level issues under
// NonFieldErrors. Keys keep insertion order. An empty report means the
// dataset is valid.
type ErrorReport struct {
	keys   []string
	issues map[string][]Issue
}

// NewErrorReport returns an empty report.
func NewErrorReport() *ErrorReport {
	return &ErrorReport{issues: make(map[string][]Issue)}
}

// Add appends issues under key.
func (r *ErrorReport) Add(key string, issues ...Issue) {
	if len(issues) == 0 {
		return
	}
	if _, ok := r.issues[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.issues[key] = append(r.issues[key], issues...)
}

// Empty reports whether no issue was recorded.
func (r *ErrorReport) Empty() bool { return len(r.keys) == 0 }

// Len returns the number of keys with issues.
func (r *ErrorReport) Len() int { return len(r.keys) }

// Keys returns the keys with issues in the order they were first added.
func (r *ErrorReport) Keys() []string { return slices.Clone(r.keys) }

// Issues returns the issues recorded under key.
func (r *ErrorReport) Issues(key string) []Issue { return slices.Clone(r.issues[key]) }

// Has reports whether key has an issue with the given code.
func (r *ErrorReport) Has(key string, code Code) bool {
	for _, i := range r.issues[key] {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Structural reports whether the input was rejected before any column was
// processed.
func (r *ErrorReport) Structural() bool {
	return len(r.keys) == 1 && r.keys[0] == NonFieldErrors && r.Has(NonFieldErrors, CodeInvalid)
}

// Messages flattens the report into key -> human-readable messages.
func (r *ErrorReport) Messages() map[string][]string {
	out := make(map[string][]string, len(r.keys))
	for _, k := range r.keys {
		msgs := make([]string, len(r.issues[k]))
		for i, issue := range r.issues[k] {
			msgs[i] = issue.String()
		}
		out[k] = msgs
	}
	return out
}

// MarshalJSON encodes the report as key -> messages.
func (r *ErrorReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Messages())
}

func (r *ErrorReport) String() string {
	var b strings.Builder
	for i, k := range r.keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		for j, issue := range r.issues[k] {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(issue.String())
		}
	}
	return b.String()
}
