package sqldb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/guillermoBallester/sqlwarden/internal/adapter/sqlgen"
	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"modernc.org/sqlite"
)

// SQLite implements Dialect for modernc.org/sqlite (pure Go, no cgo).
type SQLite struct{}

func (SQLite) Name() string               { return "sqlite" }
func (SQLite) DriverName() string         { return "sqlite" }
func (SQLite) Statements() sqlgen.Dialect { return sqlgen.SQLite }

// ReadOnlyTx is false: the driver refuses read-only transactions.
func (SQLite) ReadOnlyTx() bool { return false }

// DSN strips a sqlite:// prefix; anything else is passed to the driver as is
// (a path, file: URI or :memory:).
func (SQLite) DSN(databaseURL string) (string, error) {
	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	if dsn == "" {
		return "", fmt.Errorf("sqlite database path is empty")
	}
	return dsn, nil
}

// ListTablesQuery ignores schema filters: attached databases are not listed.
func (SQLite) ListTablesQuery([]string) (string, []any) {
	return `SELECT 'main', name, type, ''
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, nil
}

func (SQLite) ColumnsQuery(schema, table string) (string, []any) {
	if schema == "" {
		schema = "main"
	}
	return `SELECT ?, name, type, "notnull" = 0, COALESCE(dflt_value, ''), pk > 0, ''
		FROM pragma_table_info(?, ?)
		ORDER BY cid`, []any{schema, table, schema}
}

const sqliteInterrupt = 9

func (SQLite) Classify(err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqliteInterrupt {
		return fmt.Errorf("%w: %s", domain.ErrQueryTimeout, liteErr.Error())
	}
	msg := err.Error()
	if i := strings.Index(msg, "no such "); i >= 0 {
		detail := msg[i:]
		if j := strings.LastIndex(detail, " ("); j > 0 {
			detail = detail[:j]
		}
		return &domain.ObjectNotFoundError{Detail: detail}
	}
	return err
}
