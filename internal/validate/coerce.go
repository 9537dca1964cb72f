package validate

// coerce.go turns loosely-typed raw values into the Go value of a column
// kind. One coercer is picked per column from its declared kind:
//
//	integer   int64
//	float     float64
//	boolean   bool
//	string    string
//	date      time.Time at midnight UTC
//	datetime  time.Time
//
// Raw input is messy. Numeric text may carry currency symbols, thousands
// separators or accounting parentheses; booleans come as yes/no, t/f, 1/0.
// Nulls never reach a coercer.

import (
	"errors"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// coercer converts one non-null value. A non-empty Code reports failure.
type coercer func(v any) (any, Code)

// numericRegex validates a numeric string after cleanup: integers,
// decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// int64 bounds as float64. 2^63 itself is out of range.
const (
	maxInt64Float = 9223372036854775808.0
	minInt64Float = -9223372036854775808.0
)

func coercerFor(spec schema.ColumnSpec) coercer {
	switch spec.Kind {
	case dataset.KindInteger:
		return coerceInteger
	case dataset.KindFloat:
		return coerceFloat
	case dataset.KindBoolean:
		return coerceBool
	case dataset.KindString:
		return stringCoercer(!spec.KeepWhitespace, spec.AllowBlank)
	case dataset.KindDate:
		return timeCoercer(spec.Format, true)
	case dataset.KindDateTime:
		return timeCoercer(spec.Format, false)
	case dataset.KindAny:
		return func(v any) (any, Code) { return v, "" }
	default:
		return func(any) (any, Code) { return nil, CodeInvalid }
	}
}

// cleanNumeric strips currency symbols, thousands separators and accounting
// parentheses. Reports false if what remains is not a number.
func cleanNumeric(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}
	return s, numericRegex.MatchString(s)
}

func coerceInteger(v any) (any, Code) {
	switch x := v.(type) {
	case int64:
		return x, ""
	case int:
		return int64(x), ""
	case int8:
		return int64(x), ""
	case int16:
		return int64(x), ""
	case int32:
		return int64(x), ""
	case uint8:
		return int64(x), ""
	case uint16:
		return int64(x), ""
	case uint32:
		return int64(x), ""
	case uint:
		return unsignedToInt(uint64(x))
	case uint64:
		return unsignedToInt(x)
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case string:
		return parseInteger(x)
	}
	return nil, CodeInvalid
}

func unsignedToInt(u uint64) (any, Code) {
	if u > math.MaxInt64 {
		return nil, CodeOverflow
	}
	return int64(u), ""
}

func floatToInt(f float64) (any, Code) {
	switch {
	case math.IsInf(f, 0):
		return nil, CodeOverflow
	case f != math.Trunc(f):
		return nil, CodeInvalid
	case f >= maxInt64Float || f < minInt64Float:
		return nil, CodeOverflow
	}
	return int64(f), ""
}

func parseInteger(s string) (any, Code) {
	clean, ok := cleanNumeric(s)
	if !ok {
		return nil, CodeInvalid
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err == nil {
		return n, ""
	}
	if errors.Is(err, strconv.ErrRange) {
		return nil, CodeOverflow
	}
	// "3.0" and "1e3" are integral but not integer literals.
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return nil, CodeOverflow
		}
		return nil, CodeInvalid
	}
	return floatToInt(f)
}

func coerceFloat(v any) (any, Code) {
	switch x := v.(type) {
	case float64:
		if math.IsInf(x, 0) {
			return nil, CodeOverflow
		}
		return x, ""
	case float32:
		return coerceFloat(float64(x))
	case string:
		clean, ok := cleanNumeric(x)
		if !ok {
			return nil, CodeInvalid
		}
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return nil, CodeOverflow
			}
			return nil, CodeInvalid
		}
		return f, ""
	case bool:
		return nil, CodeInvalid
	}
	i, code := coerceInteger(v)
	if code != "" {
		return nil, code
	}
	// Integers beyond 2^53 do not survive the conversion exactly.
	n := i.(int64)
	f := float64(n)
	if f >= maxInt64Float || int64(f) != n {
		return nil, CodeOverflow
	}
	return f, ""
}

func coerceBool(v any) (any, Code) {
	switch x := v.(type) {
	case bool:
		return x, ""
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "yes", "y", "1":
			return true, ""
		case "false", "f", "no", "n", "0":
			return false, ""
		}
		return nil, CodeInvalid
	case float64:
		return x != 0, ""
	case float32:
		return x != 0, ""
	}
	if i, code := coerceInteger(v); code == "" {
		return i.(int64) != 0, ""
	}
	return nil, CodeInvalid
}

func stringCoercer(trim, allowBlank bool) coercer {
	return func(v any) (any, Code) {
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		case bool:
			s = strconv.FormatBool(x)
		case float64:
			s = formatFloat(x)
		case float32:
			s = formatFloat(float64(x))
		case time.Time:
			s = x.Format(time.RFC3339Nano)
		case uint64:
			s = strconv.FormatUint(x, 10)
		case uint:
			s = strconv.FormatUint(uint64(x), 10)
		default:
			i, code := coerceInteger(v)
			if code != "" {
				return nil, CodeInvalid
			}
			s = strconv.FormatInt(i.(int64), 10)
		}
		if trim {
			s = strings.TrimSpace(s)
		}
		if s == "" && !allowBlank {
			return nil, CodeBlank
		}
		return s, ""
	}
}

// formatFloat renders integral floats without a fraction, so a numeric
// spreadsheet cell 42.0 becomes "42".
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func timeCoercer(layout string, dateOnly bool) coercer {
	return func(v any) (any, Code) {
		var t time.Time
		switch x := v.(type) {
		case time.Time:
			t = x
		case string:
			parsed, err := time.Parse(layout, strings.TrimSpace(x))
			if err != nil {
				return nil, CodeInvalid
			}
			t = parsed
		default:
			return nil, CodeInvalid
		}
		if dateOnly {
			y, m, d := t.Date()
			t = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
		return t, ""
	}
}

// asList reports whether v is a list cell and returns its elements.
// Strings and byte slices are not lists.
func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
