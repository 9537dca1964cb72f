package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/validate"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderSchemas(w io.Writer, infos []core.SchemaInfo) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Entity", "Table", "Primary Key", "Columns"})
	for _, s := range infos {
		t.AppendRow(table.Row{s.Entity, s.Table, s.PrimaryKey, len(s.Columns)})
	}
	t.Render()
}

func renderSchema(w io.Writer, info core.SchemaInfo) {
	fmt.Fprintf(w, "%s -> %s\n", info.Entity, info.Table)
	t := newTable(w)
	t.AppendHeader(table.Row{"Column", "Target", "Kind", "Required", "Nullable", "Format", "Hook"})
	for _, c := range info.Columns {
		target := c.Target
		if c.Managed {
			target += " (managed)"
		}
		t.AppendRow(table.Row{c.Name, target, c.Kind, c.Required, c.AllowNull, c.Format, c.Hook})
	}
	t.Render()
	for _, group := range info.Unique {
		fmt.Fprintf(w, "unique: (%s)\n", strings.Join(group, ", "))
	}
}

func renderValidation(w io.Writer, res *core.ValidationResult) {
	if res.Valid() {
		fmt.Fprintf(w, "%s: %d rows valid\n", res.Entity, res.RowsValid)
		return
	}
	fmt.Fprintf(w, "%s: %d of %d rows valid\n", res.Entity, res.RowsValid, res.RowsReceived)
	renderReport(w, res.Report)
}

func renderReport(w io.Writer, report *validate.ErrorReport) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Column", "Error"})
	for _, key := range report.Keys() {
		for _, issue := range report.Issues(key) {
			t.AppendRow(table.Row{key, issue.String()})
		}
	}
	t.Render()
}

func renderIngest(w io.Writer, res *core.IngestResult, returning []string) {
	fmt.Fprintf(w, "%s: saved %d rows into %s (%s)\n", res.Entity, res.RowsSaved, res.Table, res.ID)
	if len(returning) == 0 || len(res.Returned) == 0 {
		return
	}

	t := newTable(w)
	keys := returnedKeys(res.Returned[0], returning)
	header := make(table.Row, 0, len(keys))
	for _, k := range keys {
		header = append(header, k)
	}
	t.AppendHeader(header)
	for _, row := range res.Returned {
		r := make(table.Row, len(keys))
		for i, k := range keys {
			r[i] = row[k]
		}
		t.AppendRow(r)
	}
	t.Render()
}

// returnedKeys orders the keys of a returned row: requested names first,
// then the rest sorted. Returned rows are keyed by table column, so an
// input name that differs from its target lands in the sorted tail.
func returnedKeys(row map[string]any, requested []string) []string {
	keys := make([]string, 0, len(row))
	seen := make(map[string]bool, len(row))
	for _, name := range requested {
		if _, ok := row[name]; ok && !seen[name] {
			keys = append(keys, name)
			seen[name] = true
		}
	}
	var rest []string
	for k := range row {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
