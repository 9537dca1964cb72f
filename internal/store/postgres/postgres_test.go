package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/persist"
	"github.com/JonMunkholm/tabload/internal/schema"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"orders", `"orders"`},
		{"UserName", `"UserName"`},
		{"public.orders", `"public"."orders"`},
		{`user"name`, `"user""name"`},
		{`users"; DROP TABLE users; --`, `"users""; DROP TABLE users; --"`},
	}
	for _, tt := range tests {
		if got := QuoteIdentifier(tt.input); got != tt.want {
			t.Errorf("QuoteIdentifier(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestCopyStatement(t *testing.T) {
	got := CopyStatement("public.orders", []string{"id", "name"}, "','", `'\N'`)
	want := `COPY "public"."orders" ("id", "name") FROM STDIN WITH (FORMAT csv, DELIMITER ',', NULL '\N')`
	if got != want {
		t.Errorf("CopyStatement() =\n%s\nwant\n%s", got, want)
	}
}

// TestStore_Live runs the engine against a real server when
// TABLOAD_TEST_DATABASE_URL is set.
func TestStore_Live(t *testing.T) {
	url := os.Getenv("TABLOAD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TABLOAD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, url, PoolConfig{MaxConns: 2})
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		DROP TABLE IF EXISTS tabload_live;
		CREATE TABLE tabload_live (id bigint PRIMARY KEY, name text NOT NULL, tags text[]);
	`)
	require.NoError(t, err)
	defer func() { _, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS tabload_live`) }()

	s, err := schema.New(schema.Definition{
		Entity:     "tabload_live",
		PrimaryKey: "id",
		Columns: []schema.ColumnSpec{
			{Name: "id", Kind: dataset.KindInteger},
			{Name: "name", Kind: dataset.KindString},
			{Name: "tags", Kind: dataset.KindList, AllowNull: true},
		},
	})
	require.NoError(t, err)

	build := func(ids []any, names []any, tags []any) *dataset.Dataset {
		ds := dataset.New([]int{0, 1})
		require.NoError(t, ds.Add(&dataset.Column{Name: "id", Kind: dataset.KindInteger, Values: ids}))
		require.NoError(t, ds.Add(&dataset.Column{Name: "name", Kind: dataset.KindString, Values: names}))
		require.NoError(t, ds.Add(&dataset.Column{Name: "tags", Kind: dataset.KindList, Values: tags}))
		return ds
	}

	e := persist.NewEngine(New(pool))
	_, err = e.Save(ctx, build(
		[]any{int64(1), int64(2)},
		[]any{"a", `with "quotes", commas`},
		[]any{[]any{"x", "y"}, nil},
	), s)
	require.NoError(t, err)

	got, err := e.Save(ctx, build(
		[]any{int64(1), int64(3)},
		[]any{"c", "d"},
		[]any{nil, []any{`\N`}},
	), s, "id")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	var names []string
	rows, err := pool.Query(ctx, `SELECT name FROM tabload_live ORDER BY id`)
	require.NoError(t, err)
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"c", `with "quotes", commas`, "d"}, names)
}
