package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DenylistKeywords are the write, DDL, DCL and administrative keywords that may
// not appear as a whole token anywhere in a read query.
var DenylistKeywords = []string{
	"DELETE", "DROP", "UPDATE", "INSERT", "ALTER", "CREATE", "TRUNCATE",
	"EXEC", "EXECUTE", "MERGE", "REPLACE", "GRANT", "REVOKE",
	"COMMIT", "ROLLBACK", "TRANSACTION", "BEGIN", "DECLARE", "SET", "USE",
	"BACKUP", "RESTORE", "KILL", "SHUTDOWN", "WAITFOR",
	"OPENROWSET", "OPENDATASOURCE", "OPENQUERY", "OPENXML", "BULK", "INTO",
}

var keywordShape = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type structuralRule struct {
	rule Rule
	re   *regexp.Regexp
}

// PatternTable holds every compiled matcher the validator uses. It is immutable
// once built and safe for concurrent use.
type PatternTable struct {
	keywords map[string]struct{}

	token        *regexp.Regexp
	blockComment *regexp.Regexp
	lineComment  *regexp.Regexp
	whitespace   *regexp.Regexp
	leadingVerb  *regexp.Regexp
	charFunction *regexp.Regexp

	// structural rules run in slice order against the original text.
	structural []structuralRule
}

// DefaultPatternTable returns the process-wide table built from DenylistKeywords.
var DefaultPatternTable = sync.OnceValue(func() *PatternTable {
	t, err := NewPatternTable()
	if err != nil {
		panic(fmt.Sprintf("building default pattern table: %v", err))
	}
	return t
})

// NewPatternTable compiles a table from DenylistKeywords plus any extra keywords.
// Extra keywords must be plain identifiers (letters, digits, underscore).
func NewPatternTable(extraKeywords ...string) (*PatternTable, error) {
	keywords := make(map[string]struct{}, len(DenylistKeywords)+len(extraKeywords))
	for _, kw := range DenylistKeywords {
		keywords[kw] = struct{}{}
	}
	for _, kw := range extraKeywords {
		kw = strings.TrimSpace(kw)
		if !keywordShape.MatchString(kw) {
			return nil, fmt.Errorf("invalid denylist keyword %q: must be a plain identifier", kw)
		}
		keywords[strings.ToUpper(kw)] = struct{}{}
	}

	alt := keywordAlternation(keywords)

	t := &PatternTable{
		keywords:     keywords,
		token:        regexp.MustCompile(`[A-Za-z0-9_]+`),
		blockComment: regexp.MustCompile(`(?s)/\*.*?(?:\*/|\z)`),
		lineComment:  regexp.MustCompile(`--[^\r\n]*`),
		whitespace:   regexp.MustCompile(`\s+`),
		leadingVerb:  regexp.MustCompile(`(?i)^(?:SELECT|WITH)\b`),
		charFunction: regexp.MustCompile(`(?i)\b(?:N?CHAR|CHR)\s*\(`),
	}

	specs := []struct {
		rule    Rule
		pattern string
	}{
		{RuleSelectInto, `(?is)\bSELECT\b.*?\bINTO\b`},
		{RuleChainedKeyword, `(?i);\s*(?:` + alt + `)\b`},
		{RuleUnionInjection, `(?is)\bUNION\s+(?:ALL\s+)?SELECT\b.*?\b(?:` + alt + `)\b`},
		{RuleCommentKeyword, `(?i)--[^\r\n]*?\b(?:` + alt + `)\b`},
		{RuleCommentKeyword, `(?is)/\*.*?\b(?:` + alt + `)\b`},
		{RuleProcedureCall, `(?i)\bEXEC(?:UTE)?(?:\s*\(|\s+[\w\[@#"])`},
		{RuleProcedureCall, `(?i)\b(?:sp|xp)_\w`},
		{RuleExternalData, `(?i)\bBULK\s+INSERT\b|\bOPENROWSET\b|\bOPENDATASOURCE\b`},
		{RuleIntrospection, `@@\w`},
		{RuleIntrospection, `(?i)\b(?:CURRENT_USER|SESSION_USER|SYSTEM_USER|CURRENT_DATABASE|CURRENT_SCHEMA)\b`},
		{RuleIntrospection, `(?i)\b(?:USER|USER_NAME|SUSER_NAME|SUSER_SNAME|DB_NAME|DB_ID|HOST_NAME|HOST_ID|DATABASE|SCHEMA_NAME|VERSION|CONNECTION_ID|INET_SERVER_ADDR)\s*\(`},
		{RuleTiming, `(?i)\bWAITFOR\s+(?:DELAY|TIME)\b`},
		{RuleTiming, `(?i)\b(?:SLEEP|PG_SLEEP|PG_SLEEP_FOR|PG_SLEEP_UNTIL|BENCHMARK)\s*\(`},
		{RuleTiming, `(?i)\bDBMS_LOCK\s*\.\s*SLEEP\b`},
		{RuleTrailingStatement, `;\s*(?:--|/\*)`},
		{RuleCharConcat, `(?i)(?:\+|\|\|)\s*(?:N?CHAR|CHR)\s*\(`},
	}
	for _, s := range specs {
		re, err := regexp.Compile(s.pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling %s rule: %w", s.rule, err)
		}
		t.structural = append(t.structural, structuralRule{rule: s.rule, re: re})
	}

	return t, nil
}

// keywordAlternation joins keywords into a regex alternation, longest first
// so that prefixes like EXEC never shadow EXECUTE in leftmost-first engines.
func keywordAlternation(keywords map[string]struct{}) string {
	list := make([]string, 0, len(keywords))
	for kw := range keywords {
		list = append(list, regexp.QuoteMeta(kw))
	}
	sort.Slice(list, func(i, j int) bool {
		if len(list[i]) != len(list[j]) {
			return len(list[i]) > len(list[j])
		}
		return list[i] < list[j]
	})
	return strings.Join(list, "|")
}

// Clean removes block and line comments, collapses whitespace runs to a single
// space and trims the result. An unterminated block comment runs to the end.
func (t *PatternTable) Clean(query string) string {
	s := t.blockComment.ReplaceAllString(query, " ")
	s = t.lineComment.ReplaceAllString(s, " ")
	s = t.whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// forbiddenKeyword returns the first token of cleaned that is on the denylist.
// A token is a maximal run of ASCII letters, digits and underscore, so
// identifiers such as Column_DROP_Name never match DROP.
func (t *PatternTable) forbiddenKeyword(cleaned string) (string, bool) {
	for _, tok := range t.token.FindAllString(cleaned, -1) {
		upper := strings.ToUpper(tok)
		if _, ok := t.keywords[upper]; ok {
			return upper, true
		}
	}
	return "", false
}

// structuralMatch returns the first structural rule that matches original.
func (t *PatternTable) structuralMatch(original string) (Rule, bool) {
	for _, s := range t.structural {
		if s.re.MatchString(original) {
			return s.rule, true
		}
	}
	return "", false
}

// Keywords returns the denylist in sorted order.
func (t *PatternTable) Keywords() []string {
	out := make([]string, 0, len(t.keywords))
	for kw := range t.keywords {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
