package validate

import (
	"math"
	"testing"
	"time"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// =============================================================================
// Integer
// =============================================================================

func TestCoerceInteger(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		want     any
		wantCode Code
	}{
		{"int", 42, int64(42), ""},
		{"int64", int64(-7), int64(-7), ""},
		{"uint8", uint8(200), int64(200), ""},
		{"integral float", 3.0, int64(3), ""},
		{"plain string", "12", int64(12), ""},
		{"thousands separator", "1,234", int64(1234), ""},
		{"currency", "$1,000", int64(1000), ""},
		{"accounting negative", "(5)", int64(-5), ""},
		{"integral decimal string", "3.0", int64(3), ""},
		{"scientific string", "1e3", int64(1000), ""},
		{"fractional string", "3.5", nil, CodeInvalid},
		{"fractional float", 2.25, nil, CodeInvalid},
		{"word", "abc", nil, CodeInvalid},
		{"bool", true, nil, CodeInvalid},
		{"string overflow", "9223372036854775808", nil, CodeOverflow},
		{"float overflow", 1e19, nil, CodeOverflow},
		{"negative float overflow", -1e19, nil, CodeOverflow},
		{"uint64 overflow", uint64(math.MaxUint64), nil, CodeOverflow},
		{"infinity", math.Inf(1), nil, CodeOverflow},
		{"huge exponent string", "1e400", nil, CodeOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code := coerceInteger(tt.input)
			if code != tt.wantCode {
				t.Fatalf("coerceInteger(%v) code = %q, want %q", tt.input, code, tt.wantCode)
			}
			if got != tt.want {
				t.Errorf("coerceInteger(%v) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
			}
		})
	}
}

// =============================================================================
// Float
// =============================================================================

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		want     any
		wantCode Code
	}{
		{"float", 9.5, 9.5, ""},
		{"int", 3, 3.0, ""},
		{"string", "2.5", 2.5, ""},
		{"currency", "$1,234.50", 1234.5, ""},
		{"accounting negative", "($10.00)", -10.0, ""},
		{"euro", "€3", 3.0, ""},
		{"word", "ten", nil, CodeInvalid},
		{"nan text", "NaN", nil, CodeInvalid},
		{"overflow", "1e400", nil, CodeOverflow},
		{"infinity", math.Inf(-1), nil, CodeOverflow},
		{"bool", false, nil, CodeInvalid},
		{"exact large int", int64(1) << 53, float64(int64(1) << 53), ""},
		{"inexact large int", int64(1)<<53 + 1, nil, CodeOverflow},
		{"max int64", int64(math.MaxInt64), nil, CodeOverflow},
		{"uint64 overflow", uint64(math.MaxUint64), nil, CodeOverflow},
		{"struct", struct{}{}, nil, CodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code := coerceFloat(tt.input)
			if code != tt.wantCode {
				t.Fatalf("coerceFloat(%v) code = %q, want %q", tt.input, code, tt.wantCode)
			}
			if got != tt.want {
				t.Errorf("coerceFloat(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Boolean
// =============================================================================

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		input    any
		want     any
		wantCode Code
	}{
		{true, true, ""},
		{"Yes", true, ""},
		{" t ", true, ""},
		{"1", true, ""},
		{"FALSE", false, ""},
		{"n", false, ""},
		{0, false, ""},
		{2, true, ""},
		{0.0, false, ""},
		{"maybe", nil, CodeInvalid},
		{time.Time{}, nil, CodeInvalid},
	}

	for _, tt := range tests {
		got, code := coerceBool(tt.input)
		if code != tt.wantCode || got != tt.want {
			t.Errorf("coerceBool(%v) = (%v, %q), want (%v, %q)", tt.input, got, code, tt.want, tt.wantCode)
		}
	}
}

// =============================================================================
// String
// =============================================================================

func TestStringCoercer(t *testing.T) {
	trimmed := stringCoercer(true, false)
	tests := []struct {
		name     string
		input    any
		want     any
		wantCode Code
	}{
		{"string", "alice", "alice", ""},
		{"trimmed", "  bob \t", "bob", ""},
		{"integral float", 42.0, "42", ""},
		{"fractional float", 9.5, "9.5", ""},
		{"int", int64(7), "7", ""},
		{"bool", true, "true", ""},
		{"large uint64", uint64(math.MaxUint64), "18446744073709551615", ""},
		{"uint", uint(9), "9", ""},
		{"blank", "   ", nil, CodeBlank},
		{"empty", "", nil, CodeBlank},
		{"unsupported", struct{}{}, nil, CodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code := trimmed(tt.input)
			if code != tt.wantCode || got != tt.want {
				t.Errorf("coerce(%v) = (%v, %q), want (%v, %q)", tt.input, got, code, tt.want, tt.wantCode)
			}
		})
	}

	raw := stringCoercer(false, true)
	if got, code := raw("  x "); code != "" || got != "  x " {
		t.Errorf("untrimmed coerce = (%q, %q), want (%q, \"\")", got, code, "  x ")
	}
	if got, code := raw(""); code != "" || got != "" {
		t.Errorf("blank-allowed coerce = (%q, %q), want empty string", got, code)
	}
}

// =============================================================================
// Date and datetime
// =============================================================================

func TestTimeCoercers(t *testing.T) {
	date := coercerFor(schema.ColumnSpec{Kind: dataset.KindDate, Format: "2006-01-02"})
	got, code := date("2024-03-05")
	if code != "" {
		t.Fatalf("date code = %q, want none", code)
	}
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if !got.(time.Time).Equal(want) {
		t.Errorf("date = %v, want %v", got, want)
	}

	if _, code := date("03/05/2024"); code != CodeInvalid {
		t.Errorf("date(wrong layout) code = %q, want invalid", code)
	}
	if _, code := date(20240305); code != CodeInvalid {
		t.Errorf("date(int) code = %q, want invalid", code)
	}

	withClock := time.Date(2024, 3, 5, 17, 30, 0, 0, time.FixedZone("X", 3600))
	got, _ = date(withClock)
	if !got.(time.Time).Equal(want) {
		t.Errorf("date(time) = %v, want truncated %v", got, want)
	}

	datetime := coercerFor(schema.ColumnSpec{Kind: dataset.KindDateTime, Format: time.RFC3339})
	got, code = datetime("2024-03-05T10:11:12Z")
	if code != "" {
		t.Fatalf("datetime code = %q, want none", code)
	}
	if !got.(time.Time).Equal(time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)) {
		t.Errorf("datetime = %v", got)
	}
}

func TestCleanNumeric(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"1,234.56", "1234.56", true},
		{" $99 ", "99", true},
		{"(1,000)", "-1000", true},
		{"£5", "5", true},
		{".5", ".5", true},
		{"", "", false},
		{"1.2.3", "1.2.3", false},
		{"12abc", "12abc", false},
	}
	for _, tt := range tests {
		got, ok := cleanNumeric(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("cleanNumeric(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAsList(t *testing.T) {
	if _, ok := asList("abc"); ok {
		t.Error("asList(string) ok = true, want false")
	}
	got, ok := asList([]string{"a", "b"})
	if !ok || len(got) != 2 || got[1] != "b" {
		t.Errorf("asList([]string) = (%v, %v)", got, ok)
	}
	if _, ok := asList(map[string]any{}); ok {
		t.Error("asList(map) ok = true, want false")
	}
}
