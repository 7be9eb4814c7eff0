package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// Writer runs the structured write operations with the dialect's statement
// builder, so identifiers are quoted and values are bound.
type Writer struct {
	db           *sql.DB
	dialect      Dialect
	queryTimeout time.Duration
}

func NewWriter(db *sql.DB, dialect Dialect, queryTimeout time.Duration) *Writer {
	return &Writer{db: db, dialect: dialect, queryTimeout: queryTimeout}
}

func (w *Writer) CreateTable(ctx context.Context, table port.TableRef, columns []port.ColumnDef) error {
	_, err := w.exec(ctx, w.dialect.Statements().CreateTable(table, columns))
	return err
}

func (w *Writer) DropTable(ctx context.Context, table port.TableRef) error {
	_, err := w.exec(ctx, w.dialect.Statements().DropTable(table))
	return err
}

func (w *Writer) InsertRow(ctx context.Context, table port.TableRef, values map[string]any) (int64, error) {
	stmt, args := w.dialect.Statements().Insert(table, values)
	return w.exec(ctx, stmt, args...)
}

func (w *Writer) UpdateRows(ctx context.Context, table port.TableRef, values, where map[string]any) (int64, error) {
	stmt, args := w.dialect.Statements().Update(table, values, where)
	return w.exec(ctx, stmt, args...)
}

func (w *Writer) exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.queryTimeout)
	defer cancel()

	res, err := w.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", w.dialect.Classify(err))
	}
	n, _ := res.RowsAffected() // not every driver reports it for DDL
	return n, nil
}
