package persist

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// DateLayout is how date columns are written to the database.
const DateLayout = "2006-01-02"

var errUnsupportedValue = errors.New("unsupported value")

// encodeText renders a dataset value as database input text. null reports
// a missing value. kind disambiguates time values.
func encodeText(kind dataset.Kind, v any) (text string, null bool, err error) {
	if dataset.IsNull(v) {
		return "", true, nil
	}
	switch x := v.(type) {
	case string:
		return x, false, nil
	case bool:
		if x {
			return "1", false, nil
		}
		return "0", false, nil
	case int:
		return strconv.FormatInt(int64(x), 10), false, nil
	case int8:
		return strconv.FormatInt(int64(x), 10), false, nil
	case int16:
		return strconv.FormatInt(int64(x), 10), false, nil
	case int32:
		return strconv.FormatInt(int64(x), 10), false, nil
	case int64:
		return strconv.FormatInt(x, 10), false, nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), false, nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), false, nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), false, nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), false, nil
	case uint64:
		return strconv.FormatUint(x, 10), false, nil
	case float32:
		return formatFloat(float64(x)), false, nil
	case float64:
		return formatFloat(x), false, nil
	case time.Time:
		if kind == dataset.KindDate {
			return x.Format(DateLayout), false, nil
		}
		return x.Format(time.RFC3339Nano), false, nil
	case []any:
		s, err := arrayLiteral(x)
		return s, false, err
	case fmt.Stringer:
		return x.String(), false, nil
	}
	return "", false, fmt.Errorf("%w: %T", errUnsupportedValue, v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// arrayLiteral renders a list as PostgreSQL array input text. Every
// element is double-quoted except nulls.
func arrayLiteral(list []any) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, el := range list {
		if i > 0 {
			b.WriteByte(',')
		}
		text, null, err := encodeText(dataset.KindAny, el)
		if err != nil {
			return "", err
		}
		if null {
			b.WriteString("NULL")
			continue
		}
		b.WriteByte('"')
		for _, r := range text {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String(), nil
}
