package policy

import (
	"fmt"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file.
// Supports data dictionary context, column-level PII masking and extra
// denylist keywords for the query validator.
type Policy struct {
	Context  ContextConfig  `yaml:"context"`
	Denylist DenylistConfig `yaml:"denylist"`
}

// ContextConfig maps fully-qualified table names (schema.table) to
// business descriptions that are merged into MCP tool responses.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides business descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// DenylistConfig extends the built-in keyword denylist, e.g. with PRAGMA or
// ATTACH for SQLite deployments. Keywords are matched as whole tokens.
type DenylistConfig struct {
	Keywords []string `yaml:"keywords"`
}

// UnmarshalYAML supports both the struct format and the plain-string format.
//
//	columns:
//	  email: "User email"           # plain string → ColumnContext{Description: "User email"}
//	  ssn:                          # struct with optional mask
//	    description: "SSN"
//	    mask: "redact"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	// Decode as struct (avoid infinite recursion by using an alias type).
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}

// PatternTable builds the validator's pattern table with this policy's extra
// keywords. Without extras it returns the shared default table.
func (p *Policy) PatternTable() (*domain.PatternTable, error) {
	if p == nil || len(p.Denylist.Keywords) == 0 {
		return domain.DefaultPatternTable(), nil
	}
	return domain.NewPatternTable(p.Denylist.Keywords...)
}
