// Package sqldb serves the database/sql engines: MySQL, SQLite and, when built
// with the duckdb tag, DuckDB. Each engine plugs in as a Dialect.
package sqldb

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/guillermoBallester/sqlwarden/internal/adapter/sqlgen"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// Dialect defines the engine-specific behaviour of a database/sql backend.
type Dialect interface {
	// Name is the engine name, also used as the db.system attribute.
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// DSN converts a configured database URL into a driver DSN.
	DSN(databaseURL string) (string, error)

	// Statements returns the statement builder for structured writes.
	Statements() sqlgen.Dialect

	// ReadOnlyTx reports whether the driver honours sql.TxOptions.ReadOnly.
	ReadOnlyTx() bool

	// ListTablesQuery returns the SQL and arguments to list tables and views.
	// Rows scan into schema, name, type, comment.
	ListTablesQuery(schemas []string) (string, []any)

	// ColumnsQuery returns the SQL and arguments to describe a table. Rows scan
	// into schema, name, data type, nullable, default, primary key, comment.
	ColumnsQuery(schema, table string) (string, []any)

	// Classify maps driver errors onto domain categories.
	Classify(err error) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Dialect{}
)

// Register makes a dialect available by name. It panics on duplicates.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[d.Name()]; dup {
		panic(fmt.Sprintf("sqldb: dialect %q registered twice", d.Name()))
	}
	registry[d.Name()] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q (available: %v)", name, available())
	}
	return d, nil
}

func available() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(MySQL{})
	Register(SQLite{})
}

func scanTable(rows *sql.Rows) (port.TableInfo, error) {
	var t port.TableInfo
	err := rows.Scan(&t.Schema, &t.Name, &t.Type, &t.Comment)
	return t, err
}

func scanColumn(rows *sql.Rows) (schema string, c port.ColumnInfo, err error) {
	err = rows.Scan(&schema, &c.Name, &c.DataType, &c.IsNullable, &c.DefaultValue, &c.IsPrimaryKey, &c.Comment)
	return schema, c, err
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ", ?"
	}
	return s
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
