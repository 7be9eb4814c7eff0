package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// Executor opens read queries through database/sql. The SQL text is sent
// exactly as received.
type Executor struct {
	db           *sql.DB
	dialect      Dialect
	queryTimeout time.Duration
}

func NewExecutor(db *sql.DB, dialect Dialect, queryTimeout time.Duration) *Executor {
	return &Executor{db: db, dialect: dialect, queryTimeout: queryTimeout}
}

func (e *Executor) System() string { return e.dialect.Name() }

// Open runs query inside a transaction (read-only where the driver supports it)
// bounded by the query timeout. The returned source owns the transaction.
func (e *Executor) Open(ctx context.Context, query string) (port.RowSource, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: e.dialect.ReadOnlyTx()})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("beginning transaction: %w", e.dialect.Classify(err))
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		cancel()
		return nil, fmt.Errorf("executing query: %w", e.dialect.Classify(err))
	}

	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		_ = tx.Rollback()
		cancel()
		return nil, fmt.Errorf("reading columns: %w", e.dialect.Classify(err))
	}

	return &rowSource{
		rows:     rows,
		tx:       tx,
		cancel:   cancel,
		columns:  cols,
		classify: e.dialect.Classify,
	}, nil
}
