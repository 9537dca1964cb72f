package validate

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ColumnHook post-processes a coerced column before it is accepted. It
// receives the values of rows that passed validation and returns the same
// number of values. Returning a *RowError rejects individual rows; any
// other error rejects the column.
type ColumnHook func(values []any) ([]any, error)

// RowError rejects specific rows from a ColumnHook. Rows are positions in
// the slice the hook received.
type RowError struct {
	Rows    []int
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s (%d rows)", e.Message, len(e.Rows))
}

// StringHook lifts a string transform into a ColumnHook. Non-string values
// pass through.
func StringHook(fn func(string) string) ColumnHook {
	return func(values []any) ([]any, error) {
		out := make([]any, len(values))
		for i, v := range values {
			if s, ok := v.(string); ok {
				out[i] = fn(s)
			} else {
				out[i] = v
			}
		}
		return out, nil
	}
}

// HookRegistry maps hook names, as referenced by schema columns, to hooks.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]ColumnHook
}

// NewHookRegistry returns a registry preloaded with the built-in hooks.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: map[string]ColumnHook{
		"upper":           StringHook(strings.ToUpper),
		"lower":           StringHook(strings.ToLower),
		"collapse_spaces": StringHook(func(s string) string { return strings.Join(strings.Fields(s), " ") }),
		"us_state":        StringHook(NormalizeUsState),
	}}
}

// Register adds a named hook. Names are unique.
func (r *HookRegistry) Register(name string, hook ColumnHook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hooks[name]; exists {
		return fmt.Errorf("hook already registered: %s", name)
	}
	r.hooks[name] = hook
	return nil
}

// Lookup returns a hook by name.
func (r *HookRegistry) Lookup(name string) (ColumnHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hooks[name]
	return h, ok
}

// Names returns the registered hook names, sorted.
func (r *HookRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// usStates maps US state full names to their abbreviations.
var usStates = map[string]string{
	"alabama":        "AL",
	"alaska":         "AK",
	"arizona":        "AZ",
	"arkansas":       "AR",
	"california":     "CA",
	"colorado":       "CO",
	"connecticut":    "CT",
	"delaware":       "DE",
	"florida":        "FL",
	"georgia":        "GA",
	"hawaii":         "HI",
	"idaho":          "ID",
	"illinois":       "IL",
	"indiana":        "IN",
	"iowa":           "IA",
	"kansas":         "KS",
	"kentucky":       "KY",
	"louisiana":      "LA",
	"maine":          "ME",
	"maryland":       "MD",
	"massachusetts":  "MA",
	"michigan":       "MI",
	"minnesota":      "MN",
	"mississippi":    "MS",
	"missouri":       "MO",
	"montana":        "MT",
	"nebraska":       "NE",
	"nevada":         "NV",
	"new hampshire":  "NH",
	"new jersey":     "NJ",
	"new mexico":     "NM",
	"new york":       "NY",
	"north carolina": "NC",
	"north dakota":   "ND",
	"ohio":           "OH",
	"oklahoma":       "OK",
	"oregon":         "OR",
	"pennsylvania":   "PA",
	"rhode island":   "RI",
	"south carolina": "SC",
	"south dakota":   "SD",
	"tennessee":      "TN",
	"texas":          "TX",
	"utah":           "UT",
	"vermont":        "VT",
	"virginia":       "VA",
	"washington":     "WA",
	"west virginia":  "WV",
	"wisconsin":      "WI",
	"wyoming":        "WY",
}

var usStateCodes = func() map[string]bool {
	codes := make(map[string]bool, len(usStates))
	for _, code := range usStates {
		codes[code] = true
	}
	return codes
}()

// NormalizeUsState converts US state names to their 2-letter codes.
// Codes are upper-cased; anything unrecognized is returned trimmed.
func NormalizeUsState(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := usStates[strings.ToLower(strings.Join(strings.Fields(s), " "))]; ok {
		return code
	}
	if upper := strings.ToUpper(s); usStateCodes[upper] {
		return upper
	}
	return s
}
