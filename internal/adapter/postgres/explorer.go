package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Explorer struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
}

func NewExplorer(pool *pgxpool.Pool, schemas []string) *Explorer {
	return &Explorer{pool: pool, schemas: schemas}
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := schemaFilter(e.schemas, "t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	tables := []port.TableInfo{}
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type, &t.Comment); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DescribeTable returns columns and primary-key membership for a table. An
// empty schema resolves to the first visible schema containing the table.
func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail := &port.TableDetail{Schema: schema, Name: tableName}

	var err error
	if schema != "" {
		err = e.pool.QueryRow(ctx, queryTableInSchema, schema, tableName).Scan(&detail.Comment)
	} else {
		filter, args := schemaFilter(e.schemas, "t.table_schema", 2)
		query := fmt.Sprintf(queryTableMeta, filter)
		err = e.pool.QueryRow(ctx, query, append([]any{tableName}, args...)...).Scan(&detail.Schema, &detail.Comment)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %q: %w", tableName, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching table metadata: %w", classify(err))
	}

	detail.Columns, err = e.fetchColumns(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	if err := e.markPrimaryKeys(ctx, detail); err != nil {
		return nil, err
	}

	return detail, nil
}

func (e *Explorer) fetchColumns(ctx context.Context, schema, tableName string) ([]port.ColumnInfo, error) {
	rows, err := e.pool.Query(ctx, queryColumns, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer rows.Close()

	var cols []port.ColumnInfo
	for rows.Next() {
		var c port.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.DefaultValue, &c.Comment); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (e *Explorer) markPrimaryKeys(ctx context.Context, detail *port.TableDetail) error {
	rows, err := e.pool.Query(ctx, queryPrimaryKeys, detail.Schema, detail.Name)
	if err != nil {
		return fmt.Errorf("fetching primary keys: %w", err)
	}
	defer rows.Close()

	pks := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning primary key row: %w", err)
		}
		pks[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating primary keys: %w", err)
	}

	for i := range detail.Columns {
		detail.Columns[i].IsPrimaryKey = pks[detail.Columns[i].Name]
	}
	return nil
}
