package sqlite

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	st := New(db)
	st.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { _ = db.Close() })
	return st, mock
}

func TestTxn_BulkLoad(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "main"."t" ("a", "b") VALUES (?, ?)`))
	prep.ExpectExec().WithArgs("1", nil).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("", "x\ty").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)

	stream := "1\t\n\"\"\t\"x\ty\"\n"
	n, err := tx.BulkLoad(ctx, "main.t", []string{"a", "b"}, strings.NewReader(stream), Format)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxn_BulkLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		setup  func(prep *sqlmock.ExpectedPrepare)
		errMsg string
	}{
		{
			name:   "field count mismatch",
			stream: "1\t2\t3\n",
			setup:  func(*sqlmock.ExpectedPrepare) {},
			errMsg: "has 3 fields, want 2",
		},
		{
			name:   "insert failure",
			stream: "1\t2\n",
			setup: func(prep *sqlmock.ExpectedPrepare) {
				prep.ExpectExec().WithArgs("1", "2").WillReturnError(assert.AnError)
			},
			errMsg: "insert row 0",
		},
		{
			name:   "unterminated quote",
			stream: "1\t\"2\n",
			setup:  func(*sqlmock.ExpectedPrepare) {},
			errMsg: "unterminated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mock := newMockStore(t)
			ctx := context.Background()

			mock.ExpectBegin()
			tt.setup(mock.ExpectPrepare("INSERT INTO"))
			mock.ExpectRollback()

			tx, err := st.Begin(ctx)
			require.NoError(t, err)
			_, err = tx.BulkLoad(ctx, "t", []string{"a", "b"}, strings.NewReader(tt.stream), Format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			require.NoError(t, tx.Rollback(ctx))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTxn_Query(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "t"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alice")).
			AddRow(int64(2), nil))
	mock.ExpectCommit()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	rows, err := tx.Query(ctx, `INSERT INTO "t" ("id") VALUES (1), (2) RETURNING "id", "name"`)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), "alice"}, {int64(2), nil}}, rows)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxn_Exec(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectRollback()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Exec(ctx, `INSERT INTO "t" VALUES (1), (2), (3)`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoting(t *testing.T) {
	tx := &txn{}

	lit, err := tx.QuoteLiteral("it's")
	require.NoError(t, err)
	assert.Equal(t, `'it''s'`, lit)

	_, err = tx.QuoteLiteral("nul\x00byte")
	assert.Error(t, err)

	assert.Equal(t, `"orders"`, tx.QuoteIdentifier("orders"))
	assert.Equal(t, `"main"."we""ird"`, tx.QuoteIdentifier(`main.we"ird`))
}

func TestStore_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	st := New(db)
	st.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NoError(t, st.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
