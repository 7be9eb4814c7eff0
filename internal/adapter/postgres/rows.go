package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// rowSource streams pgx rows and owns the surrounding transaction.
type rowSource struct {
	ctx    context.Context
	cancel context.CancelFunc
	tx     pgx.Tx
	rows   pgx.Rows
	closed bool
}

func (s *rowSource) Next() bool { return s.rows.Next() }

// Row converts the current row into a map keyed by column name. When two
// columns share a name the right-most one wins.
func (s *rowSource) Row() (map[string]any, error) {
	vals, err := s.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("reading row values: %w", classify(err))
	}
	fields := s.rows.FieldDescriptions()
	row := make(map[string]any, len(fields))
	for i, fd := range fields {
		row[fd.Name] = normalize(vals[i])
	}
	return row, nil
}

func (s *rowSource) Err() error {
	if err := s.rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", classify(err))
	}
	return nil
}

func (s *rowSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()

	s.rows.Close()
	if s.rows.Err() != nil {
		_ = s.tx.Rollback(context.WithoutCancel(s.ctx))
		return nil
	}
	if err := s.tx.Commit(s.ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	return nil
}

// normalize turns pgx values that do not serialize well into plain ones.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}
