package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// MaskType names how a sensitive column is rewritten before rows leave the server.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a known mask. The empty value means "no mask".
func (m MaskType) Valid() bool {
	switch m {
	case "", MaskRedact, MaskHash, MaskPartial, MaskNull:
		return true
	}
	return false
}

// ColumnMasks maps a column name to its mask. Matching is by bare column name,
// ignoring case.
type ColumnMasks map[string]MaskType

// Mask rewrites a single value. NULL stays NULL for every mask type.
func (m MaskType) Mask(value any) any {
	if value == nil {
		return nil
	}
	switch m {
	case MaskRedact:
		return "***"
	case MaskHash:
		sum := sha256.Sum256([]byte(fmt.Sprint(value)))
		return hex.EncodeToString(sum[:])
	case MaskPartial:
		return keepLastFour(fmt.Sprint(value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

func keepLastFour(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

// MaskTargets maps lower-cased output column names to the mask applied to them
// for one query.
type MaskTargets map[string]MaskType

// Targets resolves the output columns of sql that carry a masked value, under
// their own name or any alias. It returns an error wrapping ErrUnmaskable when
// a masked value could reach the result under a name it cannot derive.
func (cm ColumnMasks) Targets(sql string) (MaskTargets, error) {
	targets := make(MaskTargets, len(cm))
	for col, mt := range cm {
		targets[strings.ToLower(col)] = mt
	}
	if len(targets) == 0 {
		return targets, nil
	}

	lineage, err := ColumnAliases(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: query could not be parsed", ErrUnmaskable)
	}
	if lineage.Renamed {
		return nil, fmt.Errorf("%w: positional column renames are not supported", ErrUnmaskable)
	}
	if len(lineage.WholeRow) > 0 {
		return nil, fmt.Errorf("%w: whole-row reference to %q", ErrUnmaskable, lineage.WholeRow[0])
	}

	queue := slices.Sorted(maps.Keys(targets))
	for len(queue) > 0 {
		col := queue[0]
		queue = queue[1:]
		if lineage.Unnamed[col] {
			return nil, fmt.Errorf("%w: expression over masked column %q needs an alias", ErrUnmaskable, col)
		}
		for _, alias := range lineage.Aliases[col] {
			alias = strings.ToLower(alias)
			if _, seen := targets[alias]; seen {
				continue
			}
			targets[alias] = targets[col]
			queue = append(queue, alias)
		}
	}
	return targets, nil
}

// Apply masks rows in place. Output names match case-insensitively, since
// engines differ in how they fold unquoted identifiers.
func (mt MaskTargets) Apply(rows []map[string]any) {
	if len(mt) == 0 {
		return
	}
	for _, row := range rows {
		for col, v := range row {
			if m, ok := mt[strings.ToLower(col)]; ok {
				row[col] = m.Mask(v)
			}
		}
	}
}
