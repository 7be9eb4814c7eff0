package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxQueryLength is the largest query, in characters, the validator will analyse.
	MaxQueryLength = 10000

	// DefaultMaxRecordCount is the row cap for read results when MAX_ROWS is unset.
	DefaultMaxRecordCount = 100
)

// QueryValidator decides whether free-text SQL is a single read-only SELECT.
// It is a denylist: it raises the cost of injection, it does not prove safety.
type QueryValidator struct {
	patterns *PatternTable
}

// NewQueryValidator returns a validator backed by the default pattern table.
func NewQueryValidator() *QueryValidator {
	return &QueryValidator{patterns: DefaultPatternTable()}
}

// NewQueryValidatorWithTable returns a validator backed by a custom table,
// e.g. one extended with operator keywords from the policy file.
func NewQueryValidatorWithTable(t *PatternTable) *QueryValidator {
	if t == nil {
		t = DefaultPatternTable()
	}
	return &QueryValidator{patterns: t}
}

// Validate runs the checks in a fixed order and stops at the first failure.
// Comment-sensitive checks run on the original text, the rest on the cleaned copy.
func (v *QueryValidator) Validate(query string) Verdict {
	if strings.TrimSpace(query) == "" {
		return rejected(RuleEmpty, ErrEmptyQuery.Error())
	}

	if utf8.RuneCountInString(query) > MaxQueryLength {
		return rejected(RuleTooLong, fmt.Sprintf("%s of %d characters", ErrQueryTooLong.Error(), MaxQueryLength))
	}

	cleaned := v.patterns.Clean(query)
	if cleaned == "" {
		return rejected(RuleEmptyAfterComments, "query is empty after removing comments")
	}

	if !v.patterns.leadingVerb.MatchString(cleaned) {
		return rejected(RuleLeadingVerb, ErrNotAllowed.Error())
	}

	if kw, found := v.patterns.forbiddenKeyword(cleaned); found {
		verdict := rejected(RuleKeyword, fmt.Sprintf("%s: %s", ErrForbiddenKeyword.Error(), kw))
		verdict.Keyword = kw
		return verdict
	}

	if rule, found := v.patterns.structuralMatch(query); found {
		return rejected(rule, ErrMaliciousPattern.Error())
	}

	if countStatements(cleaned) > 1 {
		return rejected(RuleMultiStatement, ErrMultiStatement.Error())
	}

	if v.patterns.charFunction.MatchString(query) {
		return rejected(RuleCharFunction, "character conversion functions (CHAR, NCHAR, CHR) are not allowed because they are used for obfuscation")
	}

	return accepted()
}

// countStatements counts the non-blank fragments between statement separators.
func countStatements(cleaned string) int {
	n := 0
	for _, part := range strings.Split(cleaned, ";") {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
