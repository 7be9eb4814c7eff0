// Package sqlgen builds the parameterized statements behind the structured
// table tools. Identifiers are always quoted for the target dialect and
// values are always bound, never interpolated.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// Dialect captures the two things that differ between engines here.
type Dialect struct {
	Name        string
	Quote       func(ident string) string
	Placeholder func(n int) string // n is 1-based
}

var (
	Postgres = Dialect{Name: "postgresql", Quote: doubleQuote, Placeholder: dollar}
	MySQL    = Dialect{Name: "mysql", Quote: backtick, Placeholder: question}
	SQLite   = Dialect{Name: "sqlite", Quote: doubleQuote, Placeholder: question}
	DuckDB   = Dialect{Name: "duckdb", Quote: doubleQuote, Placeholder: question}
)

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

// Table returns the quoted, optionally schema-qualified table name.
func (d Dialect) Table(t port.TableRef) string {
	if t.Schema == "" {
		return d.Quote(t.Name)
	}
	return d.Quote(t.Schema) + "." + d.Quote(t.Name)
}

// CreateTable renders CREATE TABLE. Column types are emitted as given and must
// have been checked by the caller.
func (d Dialect) CreateTable(t port.TableRef, columns []port.ColumnDef) string {
	defs := make([]string, 0, len(columns)+1)
	var pk []string
	for _, c := range columns {
		def := d.Quote(c.Name) + " " + strings.TrimSpace(c.Type)
		if !c.Nullable || c.PrimaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if c.PrimaryKey {
			pk = append(pk, d.Quote(c.Name))
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Table(t), strings.Join(defs, ", "))
}

func (d Dialect) DropTable(t port.TableRef) string {
	return "DROP TABLE " + d.Table(t)
}

// Insert renders a single-row INSERT. Columns are emitted in sorted order so the
// statement text is stable for a given set of keys.
func (d Dialect) Insert(t port.TableRef, values map[string]any) (string, []any) {
	cols := sortedKeys(values)
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = d.Quote(c)
		marks[i] = d.Placeholder(i + 1)
		args[i] = values[c]
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Table(t), strings.Join(names, ", "), strings.Join(marks, ", ")), args
}

// Update renders an UPDATE whose WHERE is the conjunction of column equalities.
// A nil where value becomes IS NULL.
func (d Dialect) Update(t port.TableRef, values, where map[string]any) (string, []any) {
	args := make([]any, 0, len(values)+len(where))

	sets := make([]string, 0, len(values))
	for _, c := range sortedKeys(values) {
		args = append(args, values[c])
		sets = append(sets, d.Quote(c)+" = "+d.Placeholder(len(args)))
	}

	conds := make([]string, 0, len(where))
	for _, c := range sortedKeys(where) {
		if where[c] == nil {
			conds = append(conds, d.Quote(c)+" IS NULL")
			continue
		}
		args = append(args, where[c])
		conds = append(conds, d.Quote(c)+" = "+d.Placeholder(len(args)))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.Table(t), strings.Join(sets, ", "), strings.Join(conds, " AND ")), args
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
