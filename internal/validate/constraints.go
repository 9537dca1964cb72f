package validate

import (
	"strconv"
	"unicode/utf8"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// Constraint checks a coerced, non-null value. Constraints run after
// coercion and only see rows that are still valid.
type Constraint struct {
	Code   Code
	Params map[string]string
	Check  func(v any) bool
}

// MaxValue requires numeric values <= limit.
func MaxValue(limit float64) Constraint {
	return Constraint{
		Code:   CodeMaxValue,
		Params: map[string]string{"max_value": formatLimit(limit)},
		Check: func(v any) bool {
			f, ok := numeric(v)
			return ok && f <= limit
		},
	}
}

// MinValue requires numeric values >= limit.
func MinValue(limit float64) Constraint {
	return Constraint{
		Code:   CodeMinValue,
		Params: map[string]string{"min_value": formatLimit(limit)},
		Check: func(v any) bool {
			f, ok := numeric(v)
			return ok && f >= limit
		},
	}
}

// MaxLength requires strings with at most n characters, or lists with at
// most n elements.
func MaxLength(n int) Constraint {
	return Constraint{
		Code:   CodeMaxLength,
		Params: map[string]string{"max_length": strconv.Itoa(n)},
		Check: func(v any) bool {
			l, ok := length(v)
			return ok && l <= n
		},
	}
}

// MinLength requires strings with at least n characters, or lists with at
// least n elements.
func MinLength(n int) Constraint {
	return Constraint{
		Code:   CodeMinLength,
		Params: map[string]string{"min_length": strconv.Itoa(n)},
		Check: func(v any) bool {
			l, ok := length(v)
			return ok && l >= n
		},
	}
}

// constraintsFor returns the spec's constraints in declared order: value
// bounds, then length bounds, maximum before minimum.
func constraintsFor(spec schema.ColumnSpec) []Constraint {
	var out []Constraint
	switch spec.Kind {
	case dataset.KindInteger, dataset.KindFloat:
		if spec.MaxValue != nil {
			out = append(out, MaxValue(*spec.MaxValue))
		}
		if spec.MinValue != nil {
			out = append(out, MinValue(*spec.MinValue))
		}
	case dataset.KindString, dataset.KindList:
		if spec.MaxLength != nil {
			out = append(out, MaxLength(*spec.MaxLength))
		}
		if spec.MinLength != nil {
			out = append(out, MinLength(*spec.MinLength))
		}
	}
	return out
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func length(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x), true
	case []any:
		return len(x), true
	}
	return 0, false
}

func formatLimit(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
