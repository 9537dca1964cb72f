// Package persist writes validated datasets into database tables.
//
// Save first streams the dataset through the backend's bulk-ingest
// primitive in one transaction. If that fails for any reason the
// transaction is rolled back and the rows are written once more as a
// single INSERT ... ON CONFLICT statement in a fresh transaction. There is
// no further retry: a failed upsert is returned as a *FatalError.
package persist

import (
	"context"
	"io"
)

// BulkFormat describes the text stream a backend's bulk ingest accepts:
// one row per line, fields separated by Delimiter, nulls spelled Null.
type BulkFormat struct {
	Delimiter rune
	Null      string
}

// Backend opens transactions against one database.
type Backend interface {
	Begin(ctx context.Context) (Tx, error)

	// BulkFormat returns the wire format BulkLoad expects.
	BulkFormat() BulkFormat
}

// Tx is one database transaction. Rollback after Commit is a no-op and
// returns nil, so it can always be deferred.
type Tx interface {
	// BulkLoad streams rows encoded in f into table. It returns the number
	// of rows loaded.
	BulkLoad(ctx context.Context, table string, columns []string, r io.Reader, f BulkFormat) (int64, error)

	// Exec runs a statement and returns the affected row count.
	Exec(ctx context.Context, sql string) (int64, error)

	// Query runs a statement and returns its rows.
	Query(ctx context.Context, sql string) ([][]any, error)

	// QuoteLiteral renders s as a SQL string literal, quotes included.
	QuoteLiteral(s string) (string, error)

	// QuoteIdentifier renders a table or column name. Dotted names are
	// schema-qualified.
	QuoteIdentifier(name string) string

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
