package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- LoadFromFile tests ---

func TestLoadFromFile(t *testing.T) {
	yaml := `
context:
  tables:
    public.users:
      description: "Registered platform users"
      columns:
        mrr: "Monthly Recurring Revenue in cents"
        cac: "Customer Acquisition Cost in USD"
    public.orders:
      description: "Purchase orders"
`
	path := writeTempFile(t, yaml)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, pol.Context.Tables, 2)

	users := pol.Context.Tables["public.users"]
	assert.Equal(t, "Registered platform users", users.Description)
	assert.Equal(t, "Monthly Recurring Revenue in cents", users.Columns["mrr"].Description)
	assert.Empty(t, users.Columns["mrr"].Mask)
}

func TestLoadFromFile_WithMasks(t *testing.T) {
	yaml := `
context:
  tables:
    public.customers:
      description: "Customer accounts"
      columns:
        email:
          description: "Customer email"
          mask: "redact"
        ssn:
          mask: "null"
        phone:
          description: "Phone"
          mask: "partial"
        name:
          description: "Full name"
`
	path := writeTempFile(t, yaml)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)

	customers := pol.Context.Tables["public.customers"]
	assert.Equal(t, domain.MaskRedact, customers.Columns["email"].Mask)
	assert.Equal(t, "Customer email", customers.Columns["email"].Description)
	assert.Equal(t, domain.MaskNull, customers.Columns["ssn"].Mask)
	assert.Equal(t, domain.MaskPartial, customers.Columns["phone"].Mask)
	assert.Empty(t, customers.Columns["name"].Mask)
	assert.Equal(t, "Full name", customers.Columns["name"].Description)
}

func TestLoadFromFile_MixedFormats(t *testing.T) {
	yaml := `
context:
  tables:
    public.users:
      columns:
        mrr: "MRR in cents"
        email:
          description: "User email"
          mask: "hash"
`
	path := writeTempFile(t, yaml)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)

	users := pol.Context.Tables["public.users"]
	assert.Equal(t, "MRR in cents", users.Columns["mrr"].Description)
	assert.Empty(t, users.Columns["mrr"].Mask)
	assert.Equal(t, "User email", users.Columns["email"].Description)
	assert.Equal(t, domain.MaskHash, users.Columns["email"].Mask)
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/policy.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "broken yaml",
			yaml: "context:\n  tables: [invalid",
			want: []string{"parsing policy YAML"},
		},
		{
			name: "unknown mask",
			yaml: "context:\n  tables:\n    public.users:\n      columns:\n        email:\n          mask: encrypt\n",
			want: []string{"invalid value", "encrypt"},
		},
		{
			name: "empty table key",
			yaml: "context:\n  tables:\n    \"\":\n      description: bad key\n",
			want: []string{"context.tables contains an empty key"},
		},
		{
			name: "empty column key",
			yaml: "context:\n  tables:\n    public.users:\n      columns:\n        \"\": bad column key\n",
			want: []string{`context.tables["public.users"].columns contains an empty key`},
		},
		{
			name: "conflicting masks across tables",
			yaml: `
context:
  tables:
    public.users:
      columns:
        email:
          mask: "redact"
    public.orders:
      columns:
        email:
          mask: "hash"
`,
			// Tables are checked in sorted order, so orders is seen first.
			want: []string{`conflicting masks for column "email": "hash" and "redact"`},
		},
		{
			name: "multi-word denylist keyword",
			yaml: "denylist:\n  keywords: [\"DROP TABLE\"]\n",
			want: []string{"denylist.keywords"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestParse_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	yaml := `
context:
  tables:
    public.users:
      columns:
        email:
          mask: "encrypt"
        ssn:
          mask: "shred"
denylist:
  keywords: ["a;b"]
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"encrypt"`)
	assert.Contains(t, err.Error(), `"shred"`)
	assert.Contains(t, err.Error(), "denylist.keywords")
}

func TestLoadFromFile_NamesFileOnValidationError(t *testing.T) {
	path := writeTempFile(t, "denylist:\n  keywords: [\"\"]\n")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

// --- MergeTableDetail tests ---

func TestMergeTableDetail_MergesWhenEmpty(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.users": {
				Description: "Platform users",
				Columns: map[string]ColumnContext{
					"email": {Description: "User email address"},
					"mrr":   {Description: "Monthly Recurring Revenue"},
				},
			},
		},
	}

	detail := &port.TableDetail{
		Schema:  "public",
		Name:    "users",
		Comment: "", // empty: should be filled
		Columns: []port.ColumnInfo{
			{Name: "id", Comment: ""},
			{Name: "email", Comment: ""}, // should be filled
			{Name: "mrr", Comment: ""},   // should be filled
			{Name: "name", Comment: ""},  // no YAML entry: stays empty
		},
	}

	MergeTableDetail(detail, ctx)

	assert.Equal(t, "Platform users", detail.Comment)
	assert.Equal(t, "User email address", detail.Columns[1].Comment)
	assert.Equal(t, "Monthly Recurring Revenue", detail.Columns[2].Comment)
	assert.Empty(t, detail.Columns[3].Comment)
}

func TestMergeTableDetail_DoesNotOverwriteExisting(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.users": {
				Description: "From YAML",
				Columns: map[string]ColumnContext{
					"email": {Description: "From YAML"},
				},
			},
		},
	}

	detail := &port.TableDetail{
		Schema:  "public",
		Name:    "users",
		Comment: "From Postgres", // existing: should NOT be overwritten
		Columns: []port.ColumnInfo{
			{Name: "email", Comment: "From Postgres"}, // existing: should NOT be overwritten
		},
	}

	MergeTableDetail(detail, ctx)

	assert.Equal(t, "From Postgres", detail.Comment)
	assert.Equal(t, "From Postgres", detail.Columns[0].Comment)
}

func TestMergeTableDetail_NoMatchingTable(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.orders": {Description: "Orders"},
		},
	}

	detail := &port.TableDetail{
		Schema:  "public",
		Name:    "users",
		Comment: "",
	}

	MergeTableDetail(detail, ctx)

	assert.Empty(t, detail.Comment)
}

func TestMergeTableDetail_NilDetail(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.users": {Description: "Users"},
		},
	}
	// Should not panic.
	MergeTableDetail(nil, ctx)
}

// --- MergeTableInfoList tests ---

func TestMergeTableInfoList(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.users":  {Description: "Platform users"},
			"public.orders": {Description: "Purchase orders"},
		},
	}

	tables := []port.TableInfo{
		{Schema: "public", Name: "users", Comment: ""},
		{Schema: "public", Name: "orders", Comment: "Existing comment"},
		{Schema: "public", Name: "products", Comment: ""},
	}

	MergeTableInfoList(tables, ctx)

	assert.Equal(t, "Platform users", tables[0].Comment)
	assert.Equal(t, "Existing comment", tables[1].Comment)
	assert.Empty(t, tables[2].Comment)
}

// --- MaskSpec tests ---

func TestMaskSpec(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.users": {
				Columns: map[string]ColumnContext{
					"email": {Description: "User email", Mask: domain.MaskRedact},
					"name":  {Description: "Full name"},
				},
			},
			"public.orders": {
				Columns: map[string]ColumnContext{
					"total": {Description: "Order total"},
				},
			},
		},
	}

	spec := MaskSpec(ctx)
	assert.Equal(t, domain.ColumnMasks{"email": domain.MaskRedact}, spec)
}

func TestMaskSpec_Empty(t *testing.T) {
	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"public.users": {
				Columns: map[string]ColumnContext{
					"name": {Description: "Full name"},
				},
			},
		},
	}

	spec := MaskSpec(ctx)
	assert.Empty(t, spec)
}

func TestLoadFromFile_SameMaskNoConflict(t *testing.T) {
	yaml := `
context:
  tables:
    public.users:
      columns:
        email:
          mask: "redact"
    public.orders:
      columns:
        email:
          mask: "redact"
`
	path := writeTempFile(t, yaml)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, pol.Context.Tables, 2)
}

// --- Denylist tests ---

func TestLoadFromFile_DenylistKeywords(t *testing.T) {
	yaml := `
denylist:
  keywords: ["PRAGMA", "attach"]
`
	path := writeTempFile(t, yaml)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRAGMA", "attach"}, pol.Denylist.Keywords)

	pt, err := pol.PatternTable()
	require.NoError(t, err)
	assert.Contains(t, pt.Keywords(), "PRAGMA")
	assert.Contains(t, pt.Keywords(), "ATTACH")

	verdict := domain.NewQueryValidatorWithTable(pt).Validate("SELECT * FROM t WHERE attach = 1")
	assert.False(t, verdict.Accepted)
	assert.Equal(t, domain.RuleKeyword, verdict.Rule)
}

func TestPolicy_PatternTable_Default(t *testing.T) {
	var nilPolicy *Policy
	pt, err := nilPolicy.PatternTable()
	require.NoError(t, err)
	assert.Same(t, domain.DefaultPatternTable(), pt)

	pt, err = (&Policy{}).PatternTable()
	require.NoError(t, err)
	assert.Same(t, domain.DefaultPatternTable(), pt)
}

// --- PolicyExplorer tests ---

func TestPolicyExplorer_DescribeTable(t *testing.T) {
	inner := &mockExplorer{
		describeResult: &port.TableDetail{
			Schema: "public",
			Name:   "users",
			Columns: []port.ColumnInfo{
				{Name: "id", Comment: ""},
				{Name: "email", Comment: ""},
			},
		},
	}

	pol := &Policy{
		Context: ContextConfig{
			Tables: map[string]TableContext{
				"public.users": {
					Description: "Registered users",
					Columns: map[string]ColumnContext{
						"email": {Description: "User email", Mask: domain.MaskHash},
					},
				},
			},
		},
	}

	pe := NewPolicyExplorer(inner, pol)
	detail, err := pe.DescribeTable(context.Background(), "public", "users")
	require.NoError(t, err)

	assert.Equal(t, "Registered users", detail.Comment)
	assert.Equal(t, "User email", detail.Columns[1].Comment)
	assert.Equal(t, "hash", detail.Columns[1].Mask)
	assert.Empty(t, detail.Columns[0].Mask)
}

func TestPolicyExplorer_DescribeTable_Error(t *testing.T) {
	inner := &mockExplorer{err: domain.ErrNotFound}

	pe := NewPolicyExplorer(inner, &Policy{})
	_, err := pe.DescribeTable(context.Background(), "public", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPolicyExplorer_ListTables(t *testing.T) {
	inner := &mockExplorer{
		listTablesResult: []port.TableInfo{
			{Schema: "public", Name: "users", Comment: ""},
		},
	}

	pol := &Policy{
		Context: ContextConfig{
			Tables: map[string]TableContext{
				"public.users": {Description: "Registered users"},
			},
		},
	}

	pe := NewPolicyExplorer(inner, pol)
	tables, err := pe.ListTables(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Registered users", tables[0].Comment)
}

// --- helpers ---

type mockExplorer struct {
	listTablesResult []port.TableInfo
	describeResult   *port.TableDetail
	err              error
}

func (m *mockExplorer) ListTables(_ context.Context) ([]port.TableInfo, error) {
	return m.listTablesResult, m.err
}

func (m *mockExplorer) DescribeTable(_ context.Context, _, _ string) (*port.TableDetail, error) {
	return m.describeResult, m.err
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
