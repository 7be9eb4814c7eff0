package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// rowSource streams database/sql rows and owns the surrounding transaction.
type rowSource struct {
	rows     *sql.Rows
	tx       *sql.Tx
	cancel   context.CancelFunc
	columns  []string
	classify func(error) error
	closed   bool
}

func (s *rowSource) Next() bool { return s.rows.Next() }

// Row scans the current row into a map keyed by column name. When two columns
// share a name the right-most one wins.
func (s *rowSource) Row() (map[string]any, error) {
	values := make([]any, len(s.columns))
	scanTargets := make([]any, len(s.columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	if err := s.rows.Scan(scanTargets...); err != nil {
		return nil, fmt.Errorf("scan row: %w", s.classify(err))
	}

	row := make(map[string]any, len(s.columns))
	for i, col := range s.columns {
		row[col] = normalize(values[i])
	}
	return row, nil
}

func (s *rowSource) Err() error {
	if err := s.rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", s.classify(err))
	}
	return nil
}

func (s *rowSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()

	closeErr := s.rows.Close()
	if s.rows.Err() != nil || closeErr != nil {
		_ = s.tx.Rollback()
		if closeErr != nil {
			return fmt.Errorf("close rows: %w", closeErr)
		}
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", s.classify(err))
	}
	return nil
}

// normalize converts driver byte slices (MySQL text columns, for one) to strings.
func normalize(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
