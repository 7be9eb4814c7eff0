package port

import "context"

// TableRef names a table, optionally schema-qualified.
type TableRef struct {
	Schema string
	Name   string
}

// ColumnDef describes one column of a table to create.
type ColumnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableWriter performs the write-capable table operations. Identifiers are
// quoted and values bound as parameters by every implementation.
type TableWriter interface {
	CreateTable(ctx context.Context, table TableRef, columns []ColumnDef) error
	DropTable(ctx context.Context, table TableRef) error
	InsertRow(ctx context.Context, table TableRef, values map[string]any) (int64, error)
	UpdateRows(ctx context.Context, table TableRef, values, where map[string]any) (int64, error)
}
