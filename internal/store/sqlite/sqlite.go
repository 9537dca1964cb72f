// Package sqlite implements persist.Backend on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
//
// SQLite has no COPY, so BulkLoad decodes the bulk stream and replays it
// through one prepared INSERT inside the caller's transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/JonMunkholm/tabload/internal/persist"
)

// Format is the bulk stream format: tab separated, empty unquoted field
// for NULL.
var Format = persist.BulkFormat{Delimiter: '\t', Null: ""}

// Store is a SQLite-backed persist.Backend.
type Store struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// Open opens the database at path. ":memory:" databases are pinned to one
// connection so every transaction sees the same data.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{DB: db, Logger: slog.Default()}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.DB != nil {
		s.Logger.Debug("closing sqlite database")
		return s.DB.Close()
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Exec runs statements outside any transaction, e.g. table setup.
func (s *Store) Exec(ctx context.Context, stmt string) error {
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// BulkFormat implements persist.Backend.
func (s *Store) BulkFormat() persist.BulkFormat { return Format }

// Begin implements persist.Backend.
func (s *Store) Begin(ctx context.Context) (persist.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx}, nil
}

type txn struct {
	tx *sql.Tx
}

func (t *txn) BulkLoad(ctx context.Context, table string, columns []string, r io.Reader, f persist.BulkFormat) (int64, error) {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
		marks[i] = "?"
	}
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	br := persist.NewBulkReader(r, f)
	var n int64
	for {
		row, err := br.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read row %d: %w", n, err)
		}
		if len(row) != len(columns) {
			return n, fmt.Errorf("row %d has %d fields, want %d", n, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, fmt.Errorf("insert row %d: %w", n, err)
		}
		n++
	}
}

func (t *txn) Exec(ctx context.Context, stmt string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (t *txn) Query(ctx context.Context, stmt string) ([][]any, error) {
	rows, err := t.tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (t *txn) QuoteLiteral(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", errors.New("string literal contains NUL")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

func (t *txn) QuoteIdentifier(name string) string { return quoteIdentifier(name) }

func (t *txn) Commit(context.Context) error { return t.tx.Commit() }

func (t *txn) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// quoteIdentifier double-quotes each dot-separated part of name.
func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
