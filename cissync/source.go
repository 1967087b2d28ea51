package cissync

import (
	"context"
	"strings"
)

// SourceRow is one result row from the legacy source system with
// lower-cased column names. Values keep whatever loose typing the driver
// produced; the coercion layer in rows.go/coerce.go makes them usable.
type SourceRow map[string]any

// BatchIterator yields a finite, forward-only, non-restartable sequence of
// row batches. A connection failure mid-iteration surfaces through Err and
// aborts the remaining batches; batches already handed out stay processed.
type BatchIterator interface {
	// Next advances to the next batch, returning false at end of stream or
	// on error (check Err afterwards).
	Next(ctx context.Context) bool
	// Batch returns the rows fetched by the last successful Next.
	Batch() []SourceRow
	// Err returns the first error encountered during iteration, if any.
	Err() error
	// Close releases the source connection for this run.
	Close() error
}

// SourceReader is the pull-based interface to the external source-of-record
// system. The engine owns the connect/disconnect lifecycle around each run:
// implementations open a connection per call and release it when the result
// set (or iterator) is drained.
type SourceReader interface {
	// Query executes a parameterized query and returns all rows at once.
	// Used by flows whose result sets are known to be small.
	Query(ctx context.Context, query string, params map[string]any) ([]SourceRow, error)

	// FetchBatches executes a parameterized query and yields rows in
	// batches of at most batchSize, bounding memory on large backfills.
	FetchBatches(ctx context.Context, query string, params map[string]any, batchSize int) (BatchIterator, error)
}

// NormalizeRow builds a SourceRow from raw column names and values,
// lower-casing names so downstream mapping is independent of the source
// system's casing conventions. Byte slices are converted to strings since
// drivers commonly return text columns as []byte.
func NormalizeRow(columns []string, values []any) SourceRow {
	row := make(SourceRow, len(columns))
	for i, col := range columns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[strings.ToLower(col)] = v
	}
	return row
}
