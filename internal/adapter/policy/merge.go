package policy

import (
	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// MergeTableDetail enriches a TableDetail with business context from the policy.
// YAML descriptions are only applied when the existing database comment is empty,
// so operator-set COMMENT ON values always take precedence. Masked columns are
// flagged so callers know the values they read will be masked.
func MergeTableDetail(detail *port.TableDetail, ctx ContextConfig) {
	if detail == nil {
		return
	}

	tc, ok := ctx.Tables[detail.Schema+"."+detail.Name]
	if !ok {
		return
	}

	if detail.Comment == "" && tc.Description != "" {
		detail.Comment = tc.Description
	}

	for i, col := range detail.Columns {
		cc, ok := tc.Columns[col.Name]
		if !ok {
			continue
		}
		if col.Comment == "" && cc.Description != "" {
			detail.Columns[i].Comment = cc.Description
		}
		detail.Columns[i].Mask = string(cc.Mask)
	}
}

// MergeTableInfoList enriches a list of TableInfo with business context.
// Same precedence rule: YAML descriptions only fill empty comments.
func MergeTableInfoList(tables []port.TableInfo, ctx ContextConfig) {
	for i, t := range tables {
		key := t.Schema + "." + t.Name
		if tc, ok := ctx.Tables[key]; ok && t.Comment == "" && tc.Description != "" {
			tables[i].Comment = tc.Description
		}
	}
}

// MaskSpec extracts the column-name → mask-type map used to mask read results.
func MaskSpec(ctx ContextConfig) domain.ColumnMasks {
	spec := domain.ColumnMasks{}
	for _, tc := range ctx.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				spec[col] = cc.Mask
			}
		}
	}
	return spec
}
