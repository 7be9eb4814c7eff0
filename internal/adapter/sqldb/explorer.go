package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

type Explorer struct {
	db      *sql.DB
	dialect Dialect
	schemas []string
}

func NewExplorer(db *sql.DB, dialect Dialect, schemas []string) *Explorer {
	return &Explorer{db: db, dialect: dialect, schemas: schemas}
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	query, args := e.dialect.ListTablesQuery(e.schemas)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := []port.TableInfo{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DescribeTable returns the table's columns. A table with no columns does not
// exist as far as the engine's catalog is concerned.
func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	query, args := e.dialect.ColumnsQuery(schema, tableName)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("describing table: %w", e.dialect.Classify(err))
	}
	defer func() { _ = rows.Close() }()

	detail := &port.TableDetail{Schema: schema, Name: tableName}
	for rows.Next() {
		colSchema, col, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		detail.Schema = colSchema
		detail.Columns = append(detail.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}
	if len(detail.Columns) == 0 {
		return nil, fmt.Errorf("table %q: %w", tableName, domain.ErrNotFound)
	}
	return detail, nil
}
