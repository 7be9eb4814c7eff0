package policy

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads and validates a YAML policy file.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	pol, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return pol, nil
}

// Parse decodes and validates a YAML policy document. Every problem found is
// reported, in a stable order.
func Parse(data []byte) (*Policy, error) {
	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}
	if err := pol.validate(); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}
	return &pol, nil
}

func (p *Policy) validate() error {
	var errs []error

	// Masks apply by bare column name across every query, so one name
	// cannot carry two different masks.
	firstMask := map[string]string{}
	for _, table := range slices.Sorted(maps.Keys(p.Context.Tables)) {
		if table == "" {
			errs = append(errs, errors.New("context.tables contains an empty key"))
			continue
		}
		columns := p.Context.Tables[table].Columns
		for _, col := range slices.Sorted(maps.Keys(columns)) {
			mask := columns[col].Mask
			switch {
			case col == "":
				errs = append(errs, fmt.Errorf("context.tables[%q].columns contains an empty key", table))
			case mask == "":
			case !mask.Valid():
				errs = append(errs, fmt.Errorf("context.tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", table, col, mask))
			default:
				if prev, seen := firstMask[col]; seen && prev != string(mask) {
					errs = append(errs, fmt.Errorf("conflicting masks for column %q: %q and %q", col, prev, mask))
					continue
				}
				firstMask[col] = string(mask)
			}
		}
	}

	if _, err := p.PatternTable(); err != nil {
		errs = append(errs, fmt.Errorf("denylist.keywords: %w", err))
	}
	return errors.Join(errs...)
}
