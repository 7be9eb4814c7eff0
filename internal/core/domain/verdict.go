package domain

// Rule identifies the validation rule that rejected a query. Tags are stable and
// meant for logs, metrics and audit records; they are never shown to the caller.
type Rule string

const (
	RuleEmpty              Rule = "empty"
	RuleTooLong            Rule = "too_long"
	RuleEmptyAfterComments Rule = "empty_after_comments"
	RuleLeadingVerb        Rule = "leading_verb"
	RuleKeyword            Rule = "keyword"
	RuleSelectInto         Rule = "select_into"
	RuleChainedKeyword     Rule = "chained_keyword"
	RuleUnionInjection     Rule = "union_injection"
	RuleCommentKeyword     Rule = "comment_keyword"
	RuleProcedureCall      Rule = "procedure_call"
	RuleExternalData       Rule = "external_data"
	RuleIntrospection      Rule = "introspection"
	RuleTiming             Rule = "timing"
	RuleTrailingStatement  Rule = "trailing_statement"
	RuleCharConcat         Rule = "char_concat"
	RuleMultiStatement     Rule = "multi_statement"
	RuleCharFunction       Rule = "char_function"
	// RuleColumnMask is reported by the read path, not the validator, when a
	// query's output cannot be matched to the configured column masks.
	RuleColumnMask Rule = "column_mask"
)

// Verdict is the outcome of validating one query.
type Verdict struct {
	Accepted bool
	Reason   string // set only when rejected
	Rule     Rule   // set only when rejected
	Keyword  string // set only for RuleKeyword
}

func accepted() Verdict {
	return Verdict{Accepted: true}
}

func rejected(rule Rule, reason string) Verdict {
	return Verdict{Rule: rule, Reason: reason}
}

// Err returns nil for an accepted verdict, or a *RejectionError otherwise.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	return &RejectionError{Rule: v.Rule, Reason: v.Reason}
}

// RejectionError is the error form of a rejected Verdict. It unwraps to the
// category sentinel for its rule.
type RejectionError struct {
	Rule   Rule
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func (e *RejectionError) Unwrap() error {
	switch e.Rule {
	case RuleEmpty, RuleEmptyAfterComments:
		return ErrEmptyQuery
	case RuleTooLong:
		return ErrQueryTooLong
	case RuleLeadingVerb:
		return ErrNotAllowed
	case RuleKeyword:
		return ErrForbiddenKeyword
	case RuleMultiStatement:
		return ErrMultiStatement
	case RuleCharFunction:
		return ErrObfuscation
	case RuleColumnMask:
		return ErrUnmaskable
	default:
		return ErrMaliciousPattern
	}
}
