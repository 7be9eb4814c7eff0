package port

import (
	"context"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
)

// QueryValidator classifies free-text SQL before it may reach the database.
type QueryValidator interface {
	Validate(sql string) domain.Verdict
}

// RowSource is a lazy, forward-only, single-pass stream of result rows.
// Close must be safe to call after the stream is exhausted or has failed.
type RowSource interface {
	// Next advances to the next row. It returns false when the stream is
	// exhausted or failed; Err tells which.
	Next() bool
	// Row returns the current row keyed by column name. NULL is an explicit nil.
	Row() (map[string]any, error)
	Err() error
	// Close releases the stream and anything it holds (cursor, transaction, connection).
	Close() error
}

// QueryExecutor opens row sources for SQL that has already been accepted.
type QueryExecutor interface {
	Open(ctx context.Context, sql string) (RowSource, error)
}
