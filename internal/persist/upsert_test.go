package persist

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// stdQuoter quotes the way standard SQL does.
type stdQuoter struct{}

func (stdQuoter) QuoteLiteral(s string) (string, error) {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

func (stdQuoter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func mustSchema(t *testing.T, def schema.Definition) *schema.Schema {
	t.Helper()
	s, err := schema.New(def)
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	return s
}

func mustDataset(t *testing.T, cols ...*dataset.Column) *dataset.Dataset {
	t.Helper()
	n := 0
	if len(cols) > 0 {
		n = cols[0].Len()
	}
	index := make([]int, n)
	for i := range index {
		index[i] = i
	}
	ds := dataset.New(index)
	for _, c := range cols {
		if err := ds.Add(c); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	return ds
}

func ordersDataset(t *testing.T) *dataset.Dataset {
	return mustDataset(t,
		&dataset.Column{Name: "id", Kind: dataset.KindInteger, Values: []any{int64(1), int64(2)}},
		&dataset.Column{Name: "name", Kind: dataset.KindString, Values: []any{"alice", "bob"}},
		&dataset.Column{Name: "score", Kind: dataset.KindFloat, Values: []any{nil, 9.5}},
	)
}

func ordersColumns() []schema.ColumnSpec {
	return []schema.ColumnSpec{
		{Name: "id", Kind: dataset.KindInteger, Required: true},
		{Name: "name", Kind: dataset.KindString, Required: true},
		{Name: "score", Kind: dataset.KindFloat, AllowNull: true},
	}
}

// =============================================================================
// Statement shape
// =============================================================================

func TestBuildUpsert(t *testing.T) {
	tests := []struct {
		name      string
		def       schema.Definition
		returning []string
		want      string
	}{
		{
			name: "unique group with returning",
			def: schema.Definition{
				Entity: "orders", PrimaryKey: "id", Columns: ordersColumns(), Unique: [][]string{{"id"}},
			},
			returning: []string{"id"},
			want: `INSERT INTO "orders" ("id", "name", "score") VALUES (1, 'alice', NULL), (2, 'bob', 9.5) ` +
				`ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "score" = EXCLUDED."score" RETURNING "id"`,
		},
		{
			name: "primary key fallback",
			def:  schema.Definition{Entity: "orders", PrimaryKey: "id", Columns: ordersColumns()},
			want: `INSERT INTO "orders" ("id", "name", "score") VALUES (1, 'alice', NULL), (2, 'bob', 9.5) ` +
				`ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "score" = EXCLUDED."score"`,
		},
		{
			name: "no conflict target",
			def:  schema.Definition{Entity: "orders", Table: "sales.orders", Columns: ordersColumns()},
			want: `INSERT INTO "sales.orders" ("id", "name", "score") VALUES (1, 'alice', NULL), (2, 'bob', 9.5)`,
		},
		{
			name: "managed columns are not updated",
			def: schema.Definition{
				Entity: "orders", Columns: ordersColumns(), Unique: [][]string{{"id"}}, Managed: []string{"score"},
			},
			want: `INSERT INTO "orders" ("id", "name", "score") VALUES (1, 'alice', NULL), (2, 'bob', 9.5) ` +
				`ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name"`,
		},
		{
			name: "nothing left to update",
			def: schema.Definition{
				Entity: "orders", Columns: ordersColumns(), Unique: [][]string{{"id", "name"}}, Managed: []string{"score"},
			},
			want: `INSERT INTO "orders" ("id", "name", "score") VALUES (1, 'alice', NULL), (2, 'bob', 9.5) ` +
				`ON CONFLICT ("id", "name") DO NOTHING`,
		},
		{
			name: "nullable unique column is coalesced",
			def: schema.Definition{
				Entity: "orders", Columns: ordersColumns(), Unique: [][]string{{"id", "score"}},
			},
			want: `INSERT INTO "orders" ("id", "name", "score") VALUES (1, 'alice', NULL), (2, 'bob', 9.5) ` +
				`ON CONFLICT ("id", COALESCE("score", 0)) DO UPDATE SET "name" = EXCLUDED."name"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildUpsert(stdQuoter{}, ordersDataset(t), mustSchema(t, tt.def), tt.returning)
			if err != nil {
				t.Fatalf("BuildUpsert() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildUpsert() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestPlanUpsert_ConflictSentinel(t *testing.T) {
	s := mustSchema(t, schema.Definition{
		Entity: "tags",
		Columns: []schema.ColumnSpec{
			{Name: "code", Kind: dataset.KindString, AllowNull: true, ConflictSentinel: "n/a"},
			{Name: "day", Kind: dataset.KindDate, Format: "2006-01-02", AllowNull: true},
			{Name: "kept", Kind: dataset.KindString, AllowNull: true, ReplaceNull: "none"},
		},
		Unique: [][]string{{"code", "day", "kept"}},
	})
	ds := mustDataset(t,
		&dataset.Column{Name: "code", Kind: dataset.KindString, Values: []any{nil}},
		&dataset.Column{Name: "day", Kind: dataset.KindDate, Values: []any{nil}},
		&dataset.Column{Name: "kept", Kind: dataset.KindString, Values: []any{"none"}},
	)

	plan, err := PlanUpsert(stdQuoter{}, ds, s, nil)
	if err != nil {
		t.Fatalf("PlanUpsert() error = %v", err)
	}
	want := []string{`COALESCE("code", 'n/a')`, `COALESCE("day", '0001-01-01')`, `"kept"`}
	if strings.Join(plan.Conflict, "|") != strings.Join(want, "|") {
		t.Errorf("Conflict = %v, want %v", plan.Conflict, want)
	}
	if len(plan.Update) != 0 {
		t.Errorf("Update = %v, want none", plan.Update)
	}
}

// =============================================================================
// Literals
// =============================================================================

func TestRenderLiteral(t *testing.T) {
	tests := []struct {
		name  string
		kind  dataset.Kind
		value any
		want  string
	}{
		{"null", dataset.KindString, nil, "NULL"},
		{"nan", dataset.KindFloat, math.NaN(), "NULL"},
		{"true", dataset.KindBoolean, true, "TRUE"},
		{"false", dataset.KindBoolean, false, "FALSE"},
		{"int", dataset.KindInteger, int64(-42), "-42"},
		{"float", dataset.KindFloat, 0.25, "0.25"},
		{"infinity", dataset.KindFloat, math.Inf(1), "'Infinity'"},
		{"string", dataset.KindString, "O'Brien", "'O''Brien'"},
		{"date", dataset.KindDate, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), "'2024-02-29'"},
		{"datetime", dataset.KindDateTime, time.Date(2024, 2, 29, 12, 0, 0, 500, time.UTC), "'2024-02-29T12:00:00.0000005Z'"},
		{"list", dataset.KindList, []any{int64(1), nil, "it's"}, `'{"1",NULL,"it''s"}'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderLiteral(stdQuoter{}, tt.kind, tt.value)
			if err != nil {
				t.Fatalf("renderLiteral() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("renderLiteral(%v) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}
