package persist_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/persist"
	"github.com/JonMunkholm/tabload/internal/schema"
	"github.com/JonMunkholm/tabload/internal/store/sqlite"
	"github.com/JonMunkholm/tabload/internal/validate"
)

func openStore(t *testing.T, ddl string) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	st.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Exec(context.Background(), ddl))
	return st
}

func newEngine(b persist.Backend) *persist.Engine {
	return persist.NewEngine(b, persist.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// validated runs rows through the validator so the engine sees real typed
// datasets.
func validated(t *testing.T, s *schema.Schema, header []string, rows ...[]any) *dataset.Dataset {
	t.Helper()
	raw, err := dataset.NewRaw(header, rows)
	require.NoError(t, err)
	v, err := validate.NewDatasetValidator(s, raw)
	require.NoError(t, err)
	report, ds := v.Validate()
	require.True(t, report.Empty(), "validation failed: %s", report)
	return ds
}

func queryPairs(t *testing.T, st *sqlite.Store, query string) [][2]any {
	t.Helper()
	rows, err := st.DB.QueryContext(context.Background(), query)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out [][2]any
	for rows.Next() {
		var a, b any
		require.NoError(t, rows.Scan(&a, &b))
		out = append(out, [2]any{a, b})
	}
	require.NoError(t, rows.Err())
	return out
}

func countRows(t *testing.T, st *sqlite.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, st.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

var ordersDef = schema.Definition{
	Entity:     "orders",
	PrimaryKey: "id",
	Columns: []schema.ColumnSpec{
		{Name: "id", Kind: dataset.KindInteger, Required: true},
		{Name: "name", Kind: dataset.KindString, Required: true},
		{Name: "score", Kind: dataset.KindFloat, AllowNull: true},
	},
	Unique: [][]string{{"id"}},
}

// =============================================================================
// Upsert semantics
// =============================================================================

func TestSQLite_UpsertOnConflict(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, `CREATE TABLE orders (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score REAL)`)
	s, err := schema.New(ordersDef)
	require.NoError(t, err)
	e := newEngine(st)

	first := validated(t, s, []string{"id", "name"}, []any{1, "a"}, []any{2, "b"})
	got, err := e.Save(ctx, first, s, "id")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got, "bulk load returns no rows")

	second := validated(t, s, []string{"id", "name"}, []any{1, "c"}, []any{3, "d"})
	got, err = e.Save(ctx, second, s, "id")
	require.NoError(t, err)
	assert.ElementsMatch(t, []map[string]any{{"id": int64(1)}, {"id": int64(3)}}, got)

	assert.Equal(t, [][2]any{
		{int64(1), "c"},
		{int64(2), "b"},
		{int64(3), "d"},
	}, queryPairs(t, st, "SELECT id, name FROM orders ORDER BY id"))
}

func TestSQLite_NullableUniqueCoalesced(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, `
		CREATE TABLE tags (code TEXT, label TEXT NOT NULL);
		CREATE UNIQUE INDEX tags_code ON tags (COALESCE(code, ''));
	`)
	s, err := schema.New(schema.Definition{
		Entity: "tags",
		Columns: []schema.ColumnSpec{
			{Name: "code", Kind: dataset.KindString, AllowNull: true},
			{Name: "label", Kind: dataset.KindString, Required: true},
		},
		Unique: [][]string{{"code"}},
	})
	require.NoError(t, err)
	e := newEngine(st)

	_, err = e.Save(ctx, validated(t, s, []string{"code", "label"}, []any{nil, "first"}, []any{"x", "x1"}), s)
	require.NoError(t, err)

	_, err = e.Save(ctx, validated(t, s, []string{"code", "label"}, []any{nil, "second"}), s)
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, st, "tags"))
	assert.Equal(t, [][2]any{
		{nil, "second"},
		{"x", "x1"},
	}, queryPairs(t, st, "SELECT code, label FROM tags ORDER BY label"))
}

// =============================================================================
// Fallback leaves no partial state
// =============================================================================

// partialBackend lets the bulk load write its rows and then fail.
type partialBackend struct{ persist.Backend }

func (b partialBackend) Begin(ctx context.Context) (persist.Tx, error) {
	tx, err := b.Backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return partialTx{tx}, nil
}

type partialTx struct{ persist.Tx }

func (t partialTx) BulkLoad(ctx context.Context, table string, cols []string, r io.Reader, f persist.BulkFormat) (int64, error) {
	n, err := t.Tx.BulkLoad(ctx, table, cols, r, f)
	if err != nil {
		return n, err
	}
	return n, errors.New("connection reset after copy")
}

func TestSQLite_FallbackAfterPartialBulkLoad(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, `CREATE TABLE events (id INTEGER, name TEXT)`)
	s, err := schema.New(schema.Definition{
		Entity: "events",
		Columns: []schema.ColumnSpec{
			{Name: "id", Kind: dataset.KindInteger},
			{Name: "name", Kind: dataset.KindString},
		},
	})
	require.NoError(t, err)

	ds := validated(t, s, []string{"id", "name"}, []any{1, "a"}, []any{2, "b"})
	_, err = newEngine(partialBackend{st}).Save(ctx, ds, s)
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, st, "events"), "bulk rows must be rolled back before the upsert")
}

func TestSQLite_Fatal(t *testing.T) {
	st := openStore(t, `CREATE TABLE other (id INTEGER)`)
	s, err := schema.New(ordersDef)
	require.NoError(t, err)

	ds := validated(t, s, []string{"id", "name"}, []any{1, "a"})
	_, err = newEngine(st).Save(context.Background(), ds, s)

	var fatal *persist.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "orders", fatal.Table)
	assert.NotNil(t, fatal.Bulk)
}

// =============================================================================
// Typed values survive the bulk stream
// =============================================================================

func TestSQLite_BulkTypedValues(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, `CREATE TABLE facts (day TEXT, active BOOLEAN, note TEXT, tags TEXT)`)
	s, err := schema.New(schema.Definition{
		Entity: "facts",
		Columns: []schema.ColumnSpec{
			{Name: "day", Kind: dataset.KindDate, Format: "01/02/2006"},
			{Name: "active", Kind: dataset.KindBoolean},
			{Name: "note", Kind: dataset.KindString, AllowNull: true, AllowBlank: true, KeepWhitespace: true},
			{Name: "tags", Kind: dataset.KindList, Child: &schema.ColumnSpec{Kind: dataset.KindString}},
		},
	})
	require.NoError(t, err)

	ds := validated(t, s, []string{"day", "active", "note", "tags"},
		[]any{"03/04/2024", "yes", "", []any{"a", "b"}},
		[]any{"03/05/2024", "no", nil, []any{"tab\there"}},
	)
	_, err = newEngine(st).Save(ctx, ds, s)
	require.NoError(t, err)

	rows, err := st.DB.QueryContext(ctx, "SELECT day, active, note, tags FROM facts ORDER BY day")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	type fact struct {
		day    string
		active int64
		note   *string
		tags   string
	}
	var got []fact
	for rows.Next() {
		var f fact
		require.NoError(t, rows.Scan(&f.day, &f.active, &f.note, &f.tags))
		got = append(got, f)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, "2024-03-04", got[0].day)
	assert.Equal(t, int64(1), got[0].active)
	require.NotNil(t, got[0].note, "empty string must not become NULL")
	assert.Equal(t, "", *got[0].note)
	assert.Equal(t, `{"a","b"}`, got[0].tags)

	assert.Equal(t, int64(0), got[1].active)
	assert.Nil(t, got[1].note)
	assert.Equal(t, "{\"tab\there\"}", got[1].tags)
}
