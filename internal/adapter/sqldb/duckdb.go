//go:build duckdb

package sqldb

import (
	"fmt"
	"strings"

	"github.com/guillermoBallester/sqlwarden/internal/adapter/sqlgen"
	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	_ "github.com/marcboeker/go-duckdb/v2"
)

// DuckDB implements Dialect for go-duckdb. It needs cgo, so it is only
// compiled with -tags duckdb.
type DuckDB struct{}

func init() { Register(DuckDB{}) }

func (DuckDB) Name() string               { return "duckdb" }
func (DuckDB) DriverName() string         { return "duckdb" }
func (DuckDB) Statements() sqlgen.Dialect { return sqlgen.DuckDB }
func (DuckDB) ReadOnlyTx() bool           { return false }

// DSN strips a duckdb:// prefix. An empty path opens an in-memory database.
func (DuckDB) DSN(databaseURL string) (string, error) {
	return strings.TrimPrefix(databaseURL, "duckdb://"), nil
}

func (DuckDB) ListTablesQuery(schemas []string) (string, []any) {
	filter := "table_schema NOT IN ('information_schema', 'pg_catalog')"
	if len(schemas) > 0 {
		filter = "table_schema IN (" + placeholders(len(schemas)) + ")"
	}
	return `SELECT table_schema, table_name,
			CASE table_type WHEN 'BASE TABLE' THEN 'table' WHEN 'VIEW' THEN 'view' ELSE lower(table_type) END,
			''
		FROM information_schema.tables
		WHERE ` + filter + `
		ORDER BY table_schema, table_name`, stringArgs(schemas)
}

func (DuckDB) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT c.table_schema, c.column_name, c.data_type, c.is_nullable = 'YES',
			COALESCE(c.column_default, ''),
			EXISTS (
				SELECT 1 FROM duckdb_constraints() k
				WHERE k.schema_name = c.table_schema AND k.table_name = c.table_name
					AND k.constraint_type = 'PRIMARY KEY'
					AND list_contains(k.constraint_column_names, c.column_name)
			),
			''
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND c.table_name = ?
		ORDER BY c.ordinal_position`, []any{schema, table}
}

func (DuckDB) Classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Catalog Error") && strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "Binder Error") && strings.Contains(msg, "not found"):
		return &domain.ObjectNotFoundError{Detail: msg}
	case strings.Contains(msg, "INTERRUPT"):
		return fmt.Errorf("%w: %s", domain.ErrQueryTimeout, msg)
	default:
		return err
	}
}
