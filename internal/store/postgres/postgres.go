// Package postgres implements persist.Backend on a pgx connection pool.
// Bulk loads use COPY FROM STDIN in CSV format; literals are escaped by
// the server connection.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tabload/internal/persist"
)

// Format is the COPY stream format: comma separated, \N for NULL.
var Format = persist.BulkFormat{Delimiter: ',', Null: `\N`}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a pool for url, applies pc and verifies the connection.
func Connect(ctx context.Context, url string, pc PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = int32(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Beginner starts transactions. Satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a PostgreSQL-backed persist.Backend.
type Store struct {
	db Beginner
}

// New returns a store using db.
func New(db Beginner) *Store {
	return &Store{db: db}
}

// BulkFormat implements persist.Backend.
func (s *Store) BulkFormat() persist.BulkFormat { return Format }

// Begin implements persist.Backend.
func (s *Store) Begin(ctx context.Context) (persist.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx}, nil
}

type txn struct {
	tx pgx.Tx
}

func (t *txn) BulkLoad(ctx context.Context, table string, columns []string, r io.Reader, f persist.BulkFormat) (int64, error) {
	delim, err := t.QuoteLiteral(string(f.Delimiter))
	if err != nil {
		return 0, err
	}
	null, err := t.QuoteLiteral(f.Null)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Conn().PgConn().CopyFrom(ctx, r, CopyStatement(table, columns, delim, null))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (t *txn) Exec(ctx context.Context, sql string) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txn) Query(ctx context.Context, sql string) ([][]any, error) {
	rows, err := t.tx.Query(ctx, sql, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (t *txn) QuoteLiteral(s string) (string, error) {
	escaped, err := t.tx.Conn().PgConn().EscapeString(s)
	if err != nil {
		return "", err
	}
	return "'" + escaped + "'", nil
}

func (t *txn) QuoteIdentifier(name string) string { return QuoteIdentifier(name) }

func (t *txn) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *txn) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// QuoteIdentifier quotes a possibly schema-qualified name.
func QuoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// CopyStatement builds the COPY FROM STDIN command for a CSV stream.
// delim and null must already be quoted literals.
func CopyStatement(table string, columns []string, delim, null string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c)
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER %s, NULL %s)",
		QuoteIdentifier(table), strings.Join(quoted, ", "), delim, null)
}
