package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// BoundedReader materializes at most limit rows of an accepted query while
// still counting every row the source produces.
type BoundedReader struct {
	limit  int
	logger *slog.Logger
}

// NewBoundedReader returns a reader capped at limit rows. A non-positive limit
// falls back to domain.DefaultMaxRecordCount.
func NewBoundedReader(limit int, logger *slog.Logger) *BoundedReader {
	if limit <= 0 {
		limit = domain.DefaultMaxRecordCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BoundedReader{limit: limit, logger: logger}
}

// Limit returns the row cap.
func (r *BoundedReader) Limit() int { return r.limit }

// Execute opens sql through exec and reads it to completion. The query text is
// passed on verbatim; callers must have validated it. The row source is closed
// on every path, including panics raised while reading.
func (r *BoundedReader) Execute(ctx context.Context, sql string, exec port.QueryExecutor) (result domain.ReadResult) {
	src, err := exec.Open(ctx, sql)
	if err != nil {
		return r.fail(ctx, sql, "open", err)
	}

	closed := false
	defer func() {
		if closed {
			return
		}
		if cerr := src.Close(); cerr != nil {
			r.logger.WarnContext(ctx, "closing row source",
				slog.String("db.statement", sql),
				slog.String("error", cerr.Error()),
			)
		}
	}()

	rows := make([]map[string]any, 0, min(r.limit, 16))
	observed := 0
	for src.Next() {
		observed++
		if len(rows) >= r.limit {
			continue
		}
		row, err := src.Row()
		if err != nil {
			return r.fail(ctx, sql, "scan", err)
		}
		rows = append(rows, row)
	}
	if err := src.Err(); err != nil {
		return r.fail(ctx, sql, "iterate", err)
	}

	closed = true
	if err := src.Close(); err != nil {
		return r.fail(ctx, sql, "close", err)
	}

	result = domain.ReadResult{
		Success:       true,
		Rows:          rows,
		TotalObserved: observed,
	}
	if observed > r.limit {
		result.Truncated = true
		result.Message = domain.TruncationMessage(len(rows), observed)
	}
	return result
}

func (r *BoundedReader) fail(ctx context.Context, sql, stage string, err error) domain.ReadResult {
	r.logger.ErrorContext(ctx, "bounded read failed",
		slog.String("db.operation.name", stage),
		slog.String("db.statement", sql),
		slog.String("error.type", errorType(err)),
		slog.String("error", err.Error()),
	)
	return domain.FailedRead(PublicError(err))
}

// PublicError reduces an error to text that is safe to return to a client.
// Input and mode errors are ours and pass through, unresolvable object
// references keep the engine's detail, timeouts get a fixed message and
// everything else is generalized.
func PublicError(err error) string {
	var notFound *domain.ObjectNotFoundError
	switch {
	case errors.Is(err, domain.ErrReadOnly),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound):
		return err.Error()
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.Is(err, domain.ErrObjectNotFound):
		return domain.ErrObjectNotFound.Error()
	case isTimeout(err):
		return domain.ErrQueryTimeout.Error()
	default:
		return fmt.Sprintf("%s; check server logs for details", domain.ErrQueryFailed.Error())
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, domain.ErrQueryTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrObjectNotFound):
		return "object_not_found"
	case isTimeout(err):
		return "timeout"
	default:
		return "execution_error"
	}
}
