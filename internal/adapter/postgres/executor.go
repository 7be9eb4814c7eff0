package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor opens read queries inside a read-only transaction. The SQL text is
// sent exactly as received.
type Executor struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) System() string { return "postgresql" }

// Open starts a read-only transaction and runs sql in it. The returned source
// owns the transaction; closing it commits (or rolls back after a failure) and
// releases the connection.
func (e *Executor) Open(ctx context.Context, sql string) (port.RowSource, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("beginning transaction: %w", classify(err))
	}

	// Enforce statement timeout at the database level so PostgreSQL cancels
	// the query server-side even if the Go context is cancelled first.
	// SET LOCAL scopes to this transaction only.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		cancel()
		return nil, fmt.Errorf("setting statement timeout: %w", classify(err))
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		cancel()
		return nil, fmt.Errorf("executing query: %w", classify(err))
	}

	return &rowSource{ctx: ctx, cancel: cancel, tx: tx, rows: rows}, nil
}
