package persist

import "fmt"

// BulkLoadError records a failed bulk-load attempt. Save never returns it
// directly: it is logged and triggers the upsert fallback, and it is kept
// on a FatalError if the fallback fails too.
type BulkLoadError struct {
	Table   string
	BatchID string
	Rows    int
	Err     error
}

func (e *BulkLoadError) Error() string {
	return fmt.Sprintf("bulk load into %s (%d rows): %v", e.Table, e.Rows, e.Err)
}

func (e *BulkLoadError) Unwrap() error { return e.Err }

// FatalError is returned by Save when the upsert fallback fails. Nothing
// from the batch was committed.
type FatalError struct {
	Table   string
	BatchID string
	Bulk    *BulkLoadError
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("save into %s failed: %v", e.Table, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
