// Package dataset holds the tabular value types shared by validation and
// persistence: column kinds, raw loosely-typed input, and typed datasets.
package dataset

import (
	"fmt"
	"strings"
)

// Kind is the declared logical type of a column.
type Kind int

const (
	KindInvalid Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindString
	KindDate
	KindDateTime
	KindList
	// KindAny passes values through untouched. Used for list elements
	// without a declared child.
	KindAny
)

var kindNames = map[Kind]string{
	KindInteger:  "integer",
	KindFloat:    "float",
	KindBoolean:  "boolean",
	KindString:   "string",
	KindDate:     "date",
	KindDateTime: "datetime",
	KindList:     "list",
	KindAny:      "any",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind maps a kind name (as written in schema files) to a Kind.
// A few common aliases are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "bigint":
		return KindInteger, nil
	case "float", "double", "numeric", "decimal":
		return KindFloat, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "string", "text":
		return KindString, nil
	case "date":
		return KindDate, nil
	case "datetime", "timestamp":
		return KindDateTime, nil
	case "list", "array":
		return KindList, nil
	case "any":
		return KindAny, nil
	default:
		return KindInvalid, fmt.Errorf("unknown column kind %q", s)
	}
}

// MarshalText lets kinds round-trip through YAML and JSON as names.
func (k Kind) MarshalText() ([]byte, error) {
	if k == KindInvalid {
		return nil, fmt.Errorf("cannot marshal invalid kind")
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
