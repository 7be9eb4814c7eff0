package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/adapter/sqlgen"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer runs the structured write operations. Statements come from sqlgen,
// so identifiers are quoted and values are bound.
type Writer struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewWriter(pool *pgxpool.Pool, queryTimeout time.Duration) *Writer {
	return &Writer{pool: pool, queryTimeout: queryTimeout}
}

func (w *Writer) CreateTable(ctx context.Context, table port.TableRef, columns []port.ColumnDef) error {
	_, err := w.exec(ctx, sqlgen.Postgres.CreateTable(table, columns))
	return err
}

func (w *Writer) DropTable(ctx context.Context, table port.TableRef) error {
	_, err := w.exec(ctx, sqlgen.Postgres.DropTable(table))
	return err
}

func (w *Writer) InsertRow(ctx context.Context, table port.TableRef, values map[string]any) (int64, error) {
	sql, args := sqlgen.Postgres.Insert(table, values)
	return w.exec(ctx, sql, args...)
}

func (w *Writer) UpdateRows(ctx context.Context, table port.TableRef, values, where map[string]any) (int64, error) {
	sql, args := sqlgen.Postgres.Update(table, values, where)
	return w.exec(ctx, sql, args...)
}

func (w *Writer) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.queryTimeout)
	defer cancel()

	tag, err := w.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", classify(err))
	}
	return tag.RowsAffected(), nil
}
