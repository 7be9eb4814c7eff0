package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/guillermoBallester/sqlwarden/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- recording auditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

// --- mock SchemaExplorer ---

type mockExplorer struct {
	tables []port.TableInfo
	detail *port.TableDetail
	err    error
}

func (m *mockExplorer) ListTables(_ context.Context) ([]port.TableInfo, error) {
	return m.tables, m.err
}

func (m *mockExplorer) DescribeTable(_ context.Context, _, _ string) (*port.TableDetail, error) {
	return m.detail, m.err
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	rows    []map[string]any
	err     error
	opened  int
	lastSQL string // captures the SQL passed to Open
}

func (m *mockExecutor) Open(_ context.Context, sql string) (port.RowSource, error) {
	m.opened++
	m.lastSQL = sql
	if m.err != nil {
		return nil, m.err
	}
	return &sliceSource{rows: m.rows, pos: -1}, nil
}

type sliceSource struct {
	rows []map[string]any
	pos  int
}

func (s *sliceSource) Next() bool {
	s.pos++
	return s.pos < len(s.rows)
}

func (s *sliceSource) Row() (map[string]any, error) { return s.rows[s.pos], nil }
func (s *sliceSource) Err() error                   { return nil }
func (s *sliceSource) Close() error                 { return nil }

// --- mock TableWriter ---

type mockWriter struct {
	calls   []string
	columns []port.ColumnDef
	values  map[string]any
	where   map[string]any
	n       int64
	err     error
}

func (m *mockWriter) CreateTable(_ context.Context, t port.TableRef, cols []port.ColumnDef) error {
	m.calls = append(m.calls, "create "+t.Name)
	m.columns = cols
	return m.err
}

func (m *mockWriter) DropTable(_ context.Context, t port.TableRef) error {
	m.calls = append(m.calls, "drop "+t.Name)
	return m.err
}

func (m *mockWriter) InsertRow(_ context.Context, t port.TableRef, values map[string]any) (int64, error) {
	m.calls = append(m.calls, "insert "+t.Name)
	m.values = values
	return m.n, m.err
}

func (m *mockWriter) UpdateRows(_ context.Context, t port.TableRef, values, where map[string]any) (int64, error) {
	m.calls = append(m.calls, "update "+t.Name)
	m.values, m.where = values, where
	return m.n, m.err
}

// --- helpers ---

type fixture struct {
	explorer *mockExplorer
	executor *mockExecutor
	writer   *mockWriter
	auditor  port.QueryAuditor
	readOnly bool
	maxRows  int
}

func (f fixture) server() *server.MCPServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if f.explorer == nil {
		f.explorer = &mockExplorer{}
	}
	if f.executor == nil {
		f.executor = &mockExecutor{}
	}

	reader := service.NewBoundedReader(f.maxRows, logger)
	query := service.NewQueryService(domain.NewQueryValidator(), f.executor, reader, f.auditor, logger, nil, nil, nil)

	var writer port.TableWriter
	if f.writer != nil {
		writer = f.writer
	}
	tables := service.NewTableService(f.explorer, writer, nil, logger, f.readOnly)

	return NewServer("test", query, tables, logger, nil, nil)
}

var sessionCounter atomic.Int64

// rpc sends one request on a fresh session, so a server can be called
// repeatedly without "session already exists" errors.
func rpc(t *testing.T, s *server.MCPServer, method string, params map[string]any) json.RawMessage {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession(fmt.Sprintf("test-%d", sessionCounter.Add(1)), nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": method, "params": params,
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var out struct {
		Result json.RawMessage           `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &out))
	require.Nil(t, out.Error, "unexpected RPC error: %v", out.Error)
	require.NotEmpty(t, out.Result)
	return out.Result
}

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	raw := rpc(t, s, "tools/call", map[string]any{"name": toolName, "arguments": args})
	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return &result
}

type envelopeBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, result *mcp.CallToolResult) envelopeBody {
	t.Helper()
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", result.Content[0])

	var body envelopeBody
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &body))
	assert.Equal(t, !body.Success, result.IsError, "IsError must mirror success")
	return body
}

// --- read_data ---

func TestReadData_HappyPath(t *testing.T) {
	executor := &mockExecutor{rows: []map[string]any{{"id": 1, "name": "alice"}}}
	s := fixture{executor: executor}.server()

	body := decode(t, callTool(t, s, "read_data", map[string]any{"sql": "SELECT id, name FROM users"}))
	require.True(t, body.Success)
	assert.Empty(t, body.Message)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, "SELECT id, name FROM users", executor.lastSQL)
}

func TestReadData_EmptyResultIsArray(t *testing.T) {
	s := fixture{executor: &mockExecutor{}}.server()

	body := decode(t, callTool(t, s, "read_data", map[string]any{"sql": "SELECT id FROM users WHERE false"}))
	require.True(t, body.Success)
	assert.JSONEq(t, `[]`, string(body.Data))
}

func TestReadData_Truncated(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	s := fixture{executor: &mockExecutor{rows: rows}, maxRows: 2}.server()

	result := callTool(t, s, "read_data", map[string]any{"sql": "SELECT id FROM users"})
	body := decode(t, result)
	require.True(t, body.Success)
	assert.False(t, result.IsError)
	assert.Contains(t, body.Message, "returned 2 of 5 rows")

	var got []map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Len(t, got, 2)
}

func TestReadData_RejectedNeverExecutes(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"DROP TABLE users", "only SELECT queries are allowed"},
		{"SELECT * FROM users; DELETE FROM users", "query contains forbidden keyword: DELETE"},
		{"SELECT * FROM users -- DROP", "query contains a potentially malicious pattern"},
		{"SELECT CHAR(65)", "character conversion functions"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			executor := &mockExecutor{}
			s := fixture{executor: executor}.server()

			result := callTool(t, s, "read_data", map[string]any{"sql": tt.sql})
			body := decode(t, result)
			assert.True(t, result.IsError)
			assert.False(t, body.Success)
			assert.Contains(t, body.Error, tt.want)
			assert.Zero(t, executor.opened)
		})
	}
}

func TestReadData_MissingSQLIsValidated(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing", map[string]any{}},
		{"empty", map[string]any{"sql": ""}},
		{"blank", map[string]any{"sql": "  \n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &mockExecutor{}
			auditor := &recordingAuditor{}
			s := fixture{executor: executor, auditor: auditor}.server()

			result := callTool(t, s, "read_data", tt.args)
			body := decode(t, result)
			assert.True(t, result.IsError)
			assert.False(t, body.Success)
			assert.Equal(t, domain.ErrEmptyQuery.Error(), body.Error)
			assert.Zero(t, executor.opened)

			require.Len(t, auditor.entries, 1)
			assert.Equal(t, "read_data", auditor.entries[0].Tool)
			assert.False(t, auditor.entries[0].Accepted)
			assert.Equal(t, domain.RuleEmpty, auditor.entries[0].Rule)
		})
	}
}

func TestReadData_ExecutorErrorIsGeneralized(t *testing.T) {
	executor := &mockExecutor{err: fmt.Errorf("dial tcp 10.0.0.7:5432: connection refused")}
	s := fixture{executor: executor}.server()

	body := decode(t, callTool(t, s, "read_data", map[string]any{"sql": "SELECT 1"}))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "check server logs")
	assert.NotContains(t, body.Error, "10.0.0.7")
}

func TestReadData_ObjectNotFoundPassesThrough(t *testing.T) {
	executor := &mockExecutor{err: &domain.ObjectNotFoundError{Detail: `relation "nope" does not exist`}}
	s := fixture{executor: executor}.server()

	body := decode(t, callTool(t, s, "read_data", map[string]any{"sql": "SELECT * FROM nope"}))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, `relation "nope" does not exist`)
}

// --- list_tables / describe_table ---

func TestListTables_HappyPath(t *testing.T) {
	explorer := &mockExplorer{tables: []port.TableInfo{{Schema: "public", Name: "users", Type: "table"}}}
	s := fixture{explorer: explorer}.server()

	body := decode(t, callTool(t, s, "list_tables", nil))
	require.True(t, body.Success)

	var tables []port.TableInfo
	require.NoError(t, json.Unmarshal(body.Data, &tables))
	require.Len(t, tables, 1)
	assert.Equal(t, "users", tables[0].Name)
}

func TestListTables_Empty(t *testing.T) {
	s := fixture{}.server()

	body := decode(t, callTool(t, s, "list_tables", nil))
	require.True(t, body.Success)
	assert.JSONEq(t, `[]`, string(body.Data))
}

func TestListTables_Error(t *testing.T) {
	s := fixture{explorer: &mockExplorer{err: fmt.Errorf("permission denied for schema secret")}}.server()

	body := decode(t, callTool(t, s, "list_tables", nil))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "check server logs")
	assert.NotContains(t, body.Error, "secret")
}

func TestDescribeTable_HappyPath(t *testing.T) {
	explorer := &mockExplorer{
		detail: &port.TableDetail{
			Schema: "public",
			Name:   "users",
			Columns: []port.ColumnInfo{
				{Name: "id", DataType: "uuid", IsPrimaryKey: true},
				{Name: "email", DataType: "text", IsNullable: true},
			},
		},
	}
	s := fixture{explorer: explorer}.server()

	body := decode(t, callTool(t, s, "describe_table", map[string]any{"table_name": "users"}))
	require.True(t, body.Success)

	var detail port.TableDetail
	require.NoError(t, json.Unmarshal(body.Data, &detail))
	assert.Equal(t, "users", detail.Name)
	require.Len(t, detail.Columns, 2)
	assert.True(t, detail.Columns[0].IsPrimaryKey)
}

func TestDescribeTable_MissingTableName(t *testing.T) {
	s := fixture{}.server()

	body := decode(t, callTool(t, s, "describe_table", map[string]any{}))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "table_name is required")
}

func TestDescribeTable_NotFound(t *testing.T) {
	explorer := &mockExplorer{err: fmt.Errorf("table %q: %w", "ghost", domain.ErrNotFound)}
	s := fixture{explorer: explorer}.server()

	body := decode(t, callTool(t, s, "describe_table", map[string]any{"table_name": "ghost"}))
	assert.False(t, body.Success)
	assert.Equal(t, `table "ghost": not found`, body.Error)
}

// --- write tools ---

func TestWriteTools_ReadOnlyRefused(t *testing.T) {
	calls := map[string]map[string]any{
		"create_table": {"table_name": "t", "columns": []any{map[string]any{"name": "id", "type": "integer"}}},
		"drop_table":   {"table_name": "t"},
		"insert_data":  {"table_name": "t", "values": map[string]any{"id": 1}},
		"update_data":  {"table_name": "t", "values": map[string]any{"a": 1}, "where": map[string]any{"id": 1}},
	}
	for tool, args := range calls {
		t.Run(tool, func(t *testing.T) {
			writer := &mockWriter{}
			s := fixture{writer: writer, readOnly: true}.server()

			result := callTool(t, s, tool, args)
			body := decode(t, result)
			assert.True(t, result.IsError)
			assert.Equal(t, "server is in read-only mode", body.Error)
			assert.Empty(t, writer.calls)
		})
	}
}

func TestCreateTable(t *testing.T) {
	writer := &mockWriter{}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "create_table", map[string]any{
		"table_name": "events",
		"columns": []any{
			map[string]any{"name": "id", "type": "bigint", "primary_key": true},
			map[string]any{"name": "note", "type": "varchar(255)", "nullable": true},
		},
	}))
	require.True(t, body.Success, body.Error)
	assert.Equal(t, []string{"create events"}, writer.calls)
	assert.Equal(t, []port.ColumnDef{
		{Name: "id", Type: "bigint", PrimaryKey: true},
		{Name: "note", Type: "varchar(255)", Nullable: true},
	}, writer.columns)
}

func TestCreateTable_InvalidType(t *testing.T) {
	writer := &mockWriter{}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "create_table", map[string]any{
		"table_name": "events",
		"columns":    []any{map[string]any{"name": "id", "type": "int); DROP TABLE users; --"}},
	}))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "invalid input")
	assert.Empty(t, writer.calls)
}

func TestDropTable(t *testing.T) {
	writer := &mockWriter{}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "drop_table", map[string]any{"table_name": "events"}))
	require.True(t, body.Success)
	assert.Equal(t, []string{"drop events"}, writer.calls)
}

func TestInsertData_NormalizesWholeNumbers(t *testing.T) {
	writer := &mockWriter{n: 1}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "insert_data", map[string]any{
		"table_name": "events",
		"values":     map[string]any{"id": 42, "ratio": 0.5, "note": nil},
	}))
	require.True(t, body.Success)
	assert.Equal(t, "inserted 1 row(s)", body.Message)
	assert.JSONEq(t, `{"rows_affected":1}`, string(body.Data))
	assert.Equal(t, map[string]any{"id": int64(42), "ratio": 0.5, "note": nil}, writer.values)
}

func TestUpdateData(t *testing.T) {
	writer := &mockWriter{n: 3}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "update_data", map[string]any{
		"table_name": "events",
		"values":     map[string]any{"note": "done"},
		"where":      map[string]any{"status": "open"},
	}))
	require.True(t, body.Success)
	assert.Equal(t, "updated 3 row(s)", body.Message)
	assert.Equal(t, map[string]any{"status": "open"}, writer.where)
}

func TestUpdateData_EmptyWhereRefused(t *testing.T) {
	writer := &mockWriter{}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "update_data", map[string]any{
		"table_name": "events",
		"values":     map[string]any{"note": "done"},
		"where":      map[string]any{},
	}))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "where must not be empty")
	assert.Empty(t, writer.calls)
}

func TestWriteError_IsGeneralized(t *testing.T) {
	writer := &mockWriter{err: fmt.Errorf("pq: duplicate key value violates unique constraint \"events_pkey\"")}
	s := fixture{writer: writer}.server()

	body := decode(t, callTool(t, s, "insert_data", map[string]any{
		"table_name": "events",
		"values":     map[string]any{"id": 1},
	}))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "check server logs")
	assert.NotContains(t, body.Error, "events_pkey")
}

// --- tools/list ---

func TestToolsList_Annotations(t *testing.T) {
	s := fixture{}.server()

	raw := rpc(t, s, "tools/list", map[string]any{})
	var list struct {
		Tools []mcp.Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))

	byName := map[string]mcp.Tool{}
	for _, tool := range list.Tools {
		byName[tool.Name] = tool
	}
	require.Len(t, byName, 7)

	for _, name := range []string{"read_data", "list_tables", "describe_table"} {
		require.Contains(t, byName, name)
		require.NotNil(t, byName[name].Annotations.ReadOnlyHint, name)
		assert.True(t, *byName[name].Annotations.ReadOnlyHint, name)
	}
	for _, name := range []string{"create_table", "drop_table", "insert_data", "update_data"} {
		require.Contains(t, byName, name)
		require.NotNil(t, byName[name].Annotations.ReadOnlyHint, name)
		assert.False(t, *byName[name].Annotations.ReadOnlyHint, name)
	}
	require.NotNil(t, byName["drop_table"].Annotations.DestructiveHint)
	assert.True(t, *byName["drop_table"].Annotations.DestructiveHint)
}

func TestNormalizeValues(t *testing.T) {
	t.Parallel()
	assert.Nil(t, normalizeValues(nil))
	assert.Equal(t,
		map[string]any{"a": int64(3), "b": 2.5, "c": "x", "d": true, "e": nil},
		normalizeValues(map[string]any{"a": 3.0, "b": 2.5, "c": "x", "d": true, "e": nil}),
	)
}
