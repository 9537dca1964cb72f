package validate

import (
	"maps"
	"strings"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// Code identifies the kind of validation failure.
type Code string

const (
	CodeRequired   Code = "required"
	CodeNull       Code = "null"
	CodeInvalid    Code = "invalid"
	CodeOverflow   Code = "overflow"
	CodeBlank      Code = "blank"
	CodeMaxValue   Code = "max_value"
	CodeMinValue   Code = "min_value"
	CodeMaxLength  Code = "max_length"
	CodeMinLength  Code = "min_length"
	CodeNotAList   Code = "not_a_list"
	CodeEmpty      Code = "empty"
	CodeNested     Code = "nested"
	CodeDuplicated Code = "duplicated"
)

// Messages maps codes to message templates. Placeholders use the
// {name} form, e.g. {max_value}.
type Messages map[Code]string

// baseMessages apply to every kind.
var baseMessages = Messages{
	CodeRequired: "This column is required",
	CodeNull:     "Ensure column values are not null",
	CodeNested:   "Ensure list elements are valid",
}

var kindMessages = map[dataset.Kind]Messages{
	dataset.KindInteger: {
		CodeInvalid:  "Ensure column values are valid integers",
		CodeMaxValue: "Ensure column values are less than or equal to {max_value}",
		CodeMinValue: "Ensure column values are greater than or equal to {min_value}",
		CodeOverflow: "Ensure column values are not very large",
	},
	dataset.KindFloat: {
		CodeInvalid:  "Ensure column values are valid numbers",
		CodeMaxValue: "Ensure column values are less than or equal to {max_value}",
		CodeMinValue: "Ensure column values are greater than or equal to {min_value}",
		CodeOverflow: "Ensure column values are not very large",
	},
	dataset.KindBoolean: {
		CodeInvalid: "Ensure column values are valid booleans",
	},
	dataset.KindString: {
		CodeInvalid:   "Ensure column values are valid strings",
		CodeBlank:     "Ensure column values are not blank",
		CodeMaxLength: "Ensure column values have no more than {max_length} characters",
		CodeMinLength: "Ensure column values have at least {min_length} characters",
	},
	dataset.KindDate: {
		CodeInvalid: "Ensure column values have valid date format {format}",
	},
	dataset.KindDateTime: {
		CodeInvalid: "Ensure column values have valid datetime format {format}",
	},
	dataset.KindList: {
		CodeNotAList:  "Ensure column values are `list` type",
		CodeEmpty:     "Ensure column values are not empty lists",
		CodeMinLength: "Ensure column values have at least {min_length} elements.",
		CodeMaxLength: "Ensure column values have no more than {max_length} elements.",
	},
}

// datasetMessages are used for dataset-level failures.
var datasetMessages = Messages{
	CodeInvalid:    "Invalid data. Expected a dataset, but got {datatype}",
	CodeDuplicated: "Ensure values are not duplicated by {columns}",
}

// MessagesFor assembles the message table for a kind: base messages, then
// the kind's own, then caller overrides. Later layers win.
func MessagesFor(kind dataset.Kind, overrides Messages) Messages {
	return mergeMessages(baseMessages, kindMessages[kind], overrides)
}

func mergeMessages(layers ...Messages) Messages {
	out := make(Messages)
	for _, layer := range layers {
		maps.Copy(out, layer)
	}
	return out
}

// Format renders the template for code with the given placeholder values.
// Unknown codes fall back to the code itself.
func (m Messages) Format(code Code, params map[string]string) string {
	tmpl, ok := m[code]
	if !ok {
		tmpl = string(code)
	}
	if len(params) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
