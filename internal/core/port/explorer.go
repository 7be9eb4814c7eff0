package port

import "context"

type TableInfo struct {
	Schema  string `json:"schema"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment,omitempty"`
}

type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	Comment      string `json:"comment,omitempty"`
	Mask         string `json:"mask,omitempty"` // set when read results mask this column
}

type TableDetail struct {
	Schema  string       `json:"schema"`
	Name    string       `json:"name"`
	Comment string       `json:"comment,omitempty"`
	Columns []ColumnInfo `json:"columns"`
}

// SchemaExplorer lists and describes tables.
type SchemaExplorer interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schema, tableName string) (*TableDetail, error)
}
