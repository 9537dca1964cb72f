package input

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// ReadJSON reads one JSON document in any of these shapes:
//
//	[{"id": 1, "name": "a"}, ...]            records
//	{"id": [1, 2], "name": ["a", "b"]}      columns as arrays
//	{"id": {"0": 1, "1": 2}, ...}           columns keyed by row label
//
// Numbers are kept exact: integral numbers that fit become int64, others
// float64.
func ReadJSON(r io.Reader) (*dataset.Raw, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	switch x := doc.(type) {
	case []any:
		records := make([]map[string]any, len(x))
		for i, item := range x {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d: expected an object, got %s", i, jsonType(item))
			}
			records[i] = rec
		}
		return FromRecords(records)
	case map[string]any:
		return fromColumns(x)
	}
	return nil, fmt.Errorf("expected an array of records or an object of columns, got %s", jsonType(doc))
}

// FromRecords builds raw input from row maps. Columns are ordered by name;
// keys missing from a record are null.
func FromRecords(records []map[string]any) (*dataset.Raw, error) {
	seen := make(map[string]bool)
	var header []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(header))
		for j, k := range header {
			row[j] = normalize(rec[k])
		}
		rows[i] = row
	}
	return dataset.NewRaw(header, rows)
}

func fromColumns(doc map[string]any) (*dataset.Raw, error) {
	cols := make(map[string][]any, len(doc))
	var labels []string
	for name, v := range doc {
		switch x := v.(type) {
		case []any:
			vals := make([]any, len(x))
			for i, el := range x {
				vals[i] = normalize(el)
			}
			cols[name] = vals
		case map[string]any:
			if labels == nil {
				labels = rowLabels(doc)
			}
			vals := make([]any, len(labels))
			for i, label := range labels {
				vals[i] = normalize(x[label])
			}
			cols[name] = vals
		default:
			return nil, fmt.Errorf("column %q: expected an array or object, got %s", name, jsonType(v))
		}
	}
	return dataset.RawFromColumns(cols, nil)
}

// rowLabels collects the row labels of label-keyed columns, in numeric
// order when every label is an integer.
func rowLabels(doc map[string]any) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, v := range doc {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for label := range m {
			if !seen[label] {
				seen[label] = true
				labels = append(labels, label)
			}
		}
	}

	numeric := true
	for _, l := range labels {
		if _, err := strconv.Atoi(l); err != nil {
			numeric = false
			break
		}
	}
	sort.Slice(labels, func(i, j int) bool {
		if numeric {
			a, _ := strconv.Atoi(labels[i])
			b, _ := strconv.Atoi(labels[j])
			return a < b
		}
		return labels[i] < labels[j]
	})
	return labels
}

// normalize converts decoded JSON numbers to native Go numbers, recursing
// into arrays.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			return f
		}
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalize(el)
		}
		return out
	}
	return v
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
