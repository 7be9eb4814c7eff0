package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/guillermoBallester/sqlwarden/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "sqlwarden"

// Tool names
const (
	toolReadData      = "read_data"
	toolListTables    = "list_tables"
	toolDescribeTable = "describe_table"
	toolCreateTable   = "create_table"
	toolDropTable     = "drop_table"
	toolInsertData    = "insert_data"
	toolUpdateData    = "update_data"
)

// Tool descriptions
const (
	descReadData = "Execute a single read-only SELECT (or WITH ... SELECT) query and return the rows as JSON objects. " +
		"Queries are screened before execution: write or DDL keywords, multiple statements, comments hiding keywords, " +
		"timing functions and character-code obfuscation are rejected. " +
		"A server-side row limit applies; when it is hit the response says how many rows the query produced in total. " +
		"Always select specific columns and filter with WHERE."

	descListTables = "List all tables and views with their schema, type and comment. " +
		"Call this first to discover what exists before describing or querying tables."

	descDescribeTable = "Describe a table's columns: name, data type, nullability, default, primary key membership and comment. " +
		"Columns flagged with a mask are masked in read_data results. " +
		"Use this before writing queries or inserting data."

	descCreateTable = "Create a table from structured column definitions. " +
		"Each column needs a name and a SQL type; columns are NOT NULL unless nullable is true. " +
		"Not available when the server is in read-only mode."

	descDropTable = "Drop a table and all of its data. This cannot be undone. " +
		"Not available when the server is in read-only mode."

	descInsertData = "Insert a single row. Keys of values are column names; values are bound as parameters. " +
		"Not available when the server is in read-only mode."

	descUpdateData = "Update rows matching every key/value pair in where (equality only, null matches IS NULL). " +
		"where must not be empty. Keys of values are the columns to set. " +
		"Not available when the server is in read-only mode."
)

// Tool inputs. Field tags drive the generated input schema.
type (
	readDataInput struct {
		SQL string `json:"sql" jsonschema:"description=SQL SELECT query to execute"`
	}

	tableInput struct {
		TableName string `json:"table_name" jsonschema:"description=Name of the table"`
		Schema    string `json:"schema,omitempty" jsonschema:"description=Schema name (optional; the database default is used if omitted)"`
	}

	columnInput struct {
		Name       string `json:"name" jsonschema:"description=Column name"`
		Type       string `json:"type" jsonschema:"description=SQL type such as integer or varchar(255)"`
		Nullable   bool   `json:"nullable,omitempty" jsonschema:"description=Allow NULL values (default false)"`
		PrimaryKey bool   `json:"primary_key,omitempty" jsonschema:"description=Part of the primary key"`
	}

	createTableInput struct {
		TableName string        `json:"table_name" jsonschema:"description=Name of the table to create"`
		Schema    string        `json:"schema,omitempty" jsonschema:"description=Schema name (optional)"`
		Columns   []columnInput `json:"columns" jsonschema:"description=Column definitions in table order"`
	}

	insertDataInput struct {
		TableName string         `json:"table_name" jsonschema:"description=Name of the table"`
		Schema    string         `json:"schema,omitempty" jsonschema:"description=Schema name (optional)"`
		Values    map[string]any `json:"values" jsonschema:"description=Column name to value"`
	}

	updateDataInput struct {
		TableName string         `json:"table_name" jsonschema:"description=Name of the table"`
		Schema    string         `json:"schema,omitempty" jsonschema:"description=Schema name (optional)"`
		Values    map[string]any `json:"values" jsonschema:"description=Column name to new value"`
		Where     map[string]any `json:"where" jsonschema:"description=Column name to required value; all pairs must match"`
	}
)

// response is the JSON envelope every tool returns.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func RegisterTools(s *server.MCPServer, query *service.QueryService, tables *service.TableService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool(toolReadData,
			mcp.WithDescription(descReadData),
			mcp.WithInputSchema[readDataInput](),
			mcp.WithTitleAnnotation("Read data"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		readDataHandler(query),
	)

	s.AddTool(
		mcp.NewTool(toolListTables,
			mcp.WithDescription(descListTables),
			mcp.WithTitleAnnotation("List tables"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		listTablesHandler(tables, logger),
	)

	s.AddTool(
		mcp.NewTool(toolDescribeTable,
			mcp.WithDescription(descDescribeTable),
			mcp.WithInputSchema[tableInput](),
			mcp.WithTitleAnnotation("Describe table"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		describeTableHandler(tables, logger),
	)

	s.AddTool(
		mcp.NewTool(toolCreateTable,
			mcp.WithDescription(descCreateTable),
			mcp.WithInputSchema[createTableInput](),
			mcp.WithTitleAnnotation("Create table"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		createTableHandler(tables, logger),
	)

	s.AddTool(
		mcp.NewTool(toolDropTable,
			mcp.WithDescription(descDropTable),
			mcp.WithInputSchema[tableInput](),
			mcp.WithTitleAnnotation("Drop table"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		dropTableHandler(tables, logger),
	)

	s.AddTool(
		mcp.NewTool(toolInsertData,
			mcp.WithDescription(descInsertData),
			mcp.WithInputSchema[insertDataInput](),
			mcp.WithTitleAnnotation("Insert data"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		insertDataHandler(tables, logger),
	)

	s.AddTool(
		mcp.NewTool(toolUpdateData,
			mcp.WithDescription(descUpdateData),
			mcp.WithInputSchema[updateDataInput](),
			mcp.WithTitleAnnotation("Update data"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		updateDataHandler(tables, logger),
	)
}

func readDataHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in readDataInput
		if err := request.BindArguments(&in); err != nil {
			return badArguments(err), nil
		}

		ctx = service.WithToolName(ctx, toolReadData)
		res := query.Read(ctx, in.SQL)
		if !res.Success {
			return envelope(response{Error: res.Error}), nil
		}
		return envelope(response{Success: true, Data: res.Rows, Message: res.Message}), nil
	}
}

func listTablesHandler(tables *service.TableService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := tables.ListTables(ctx)
		if err != nil {
			return failure(ctx, logger, toolListTables, err), nil
		}
		if list == nil {
			list = []port.TableInfo{}
		}
		return envelope(response{Success: true, Data: list}), nil
	}
}

func describeTableHandler(tables *service.TableService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in tableInput
		if err := request.BindArguments(&in); err != nil {
			return badArguments(err), nil
		}

		detail, err := tables.DescribeTable(ctx, in.Schema, in.TableName)
		if err != nil {
			return failure(ctx, logger, toolDescribeTable, err), nil
		}
		return envelope(response{Success: true, Data: detail}), nil
	}
}

func createTableHandler(tables *service.TableService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in createTableInput
		if err := request.BindArguments(&in); err != nil {
			return badArguments(err), nil
		}

		cols := make([]port.ColumnDef, len(in.Columns))
		for i, c := range in.Columns {
			cols[i] = port.ColumnDef{Name: c.Name, Type: c.Type, Nullable: c.Nullable, PrimaryKey: c.PrimaryKey}
		}

		ref := port.TableRef{Schema: in.Schema, Name: in.TableName}
		ctx = service.WithToolName(ctx, toolCreateTable)
		if err := tables.CreateTable(ctx, ref, cols); err != nil {
			return failure(ctx, logger, toolCreateTable, err), nil
		}
		return envelope(response{Success: true, Message: fmt.Sprintf("table %s created", ref.Name)}), nil
	}
}

func dropTableHandler(tables *service.TableService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in tableInput
		if err := request.BindArguments(&in); err != nil {
			return badArguments(err), nil
		}

		ref := port.TableRef{Schema: in.Schema, Name: in.TableName}
		ctx = service.WithToolName(ctx, toolDropTable)
		if err := tables.DropTable(ctx, ref); err != nil {
			return failure(ctx, logger, toolDropTable, err), nil
		}
		return envelope(response{Success: true, Message: fmt.Sprintf("table %s dropped", ref.Name)}), nil
	}
}

func insertDataHandler(tables *service.TableService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in insertDataInput
		if err := request.BindArguments(&in); err != nil {
			return badArguments(err), nil
		}

		ctx = service.WithToolName(ctx, toolInsertData)
		n, err := tables.InsertRow(ctx, port.TableRef{Schema: in.Schema, Name: in.TableName}, normalizeValues(in.Values))
		if err != nil {
			return failure(ctx, logger, toolInsertData, err), nil
		}
		return envelope(response{
			Success: true,
			Data:    map[string]int64{"rows_affected": n},
			Message: fmt.Sprintf("inserted %d row(s)", n),
		}), nil
	}
}

func updateDataHandler(tables *service.TableService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in updateDataInput
		if err := request.BindArguments(&in); err != nil {
			return badArguments(err), nil
		}

		ctx = service.WithToolName(ctx, toolUpdateData)
		n, err := tables.UpdateRows(ctx, port.TableRef{Schema: in.Schema, Name: in.TableName}, normalizeValues(in.Values), normalizeValues(in.Where))
		if err != nil {
			return failure(ctx, logger, toolUpdateData, err), nil
		}
		return envelope(response{
			Success: true,
			Data:    map[string]int64{"rows_affected": n},
			Message: fmt.Sprintf("updated %d row(s)", n),
		}), nil
	}
}

// envelope renders r as the tool's text content. IsError mirrors !Success.
func envelope(r response) *mcp.CallToolResult {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(response{Error: "failed to encode result"})
		r.Success = false
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = !r.Success
	return res
}

// failure logs the full error and returns only its caller-safe form.
func failure(ctx context.Context, logger *slog.Logger, tool string, err error) *mcp.CallToolResult {
	logger.WarnContext(ctx, "tool failed",
		slog.String("mcp.tool", tool),
		slog.String("error", err.Error()),
	)
	return envelope(response{Error: service.PublicError(err)})
}

func badArguments(err error) *mcp.CallToolResult {
	return envelope(response{Error: fmt.Sprintf("%s: %v", domain.ErrInvalidInput.Error(), err)})
}

// normalizeValues turns whole-number JSON floats into int64 so integer
// columns bind cleanly on every driver.
func normalizeValues(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			v = int64(f)
		}
		out[k] = v
	}
	return out
}
