package nl2sql

import (
	"fmt"
	"regexp"
	"strings"
)

const RuleSelectPrefix = "select_prefix"

type forbiddenRule struct {
	name    string
	pattern *regexp.Regexp
}

// Forbidden patterns are matched anywhere in the statement, including inside
// comments, subqueries and CTEs.
var forbiddenRules = []forbiddenRule{
	{name: "insert", pattern: regexp.MustCompile(`(?is)\bINSERT\s+INTO\b`)},
	{name: "update", pattern: regexp.MustCompile(`(?is)\bUPDATE\s+.+?\s+SET\b`)},
	{name: "delete", pattern: regexp.MustCompile(`(?is)\bDELETE\s+FROM\b`)},
	{name: "drop", pattern: regexp.MustCompile(`(?is)\bDROP\s+(TABLE|DATABASE|SCHEMA|FUNCTION)\b`)},
	{name: "create", pattern: regexp.MustCompile(`(?is)\bCREATE\s+(TABLE|DATABASE|SCHEMA|FUNCTION)\b`)},
	{name: "alter", pattern: regexp.MustCompile(`(?is)\bALTER\s+(TABLE|DATABASE|SCHEMA)\b`)},
	{name: "truncate", pattern: regexp.MustCompile(`(?is)\bTRUNCATE\s+TABLE\b`)},
	{name: "grant", pattern: regexp.MustCompile(`(?is)\bGRANT\s+`)},
	{name: "revoke", pattern: regexp.MustCompile(`(?is)\bREVOKE\s+`)},
	{name: "exec", pattern: regexp.MustCompile(`(?is)\bEXEC\s*\(`)},
	{name: "call", pattern: regexp.MustCompile(`(?is)\bCALL\s+`)},
	{name: "do_block", pattern: regexp.MustCompile(`(?is)\bDO\s+\$\$`)},
}

// PolicyViolation reports which rule rejected a statement.
type PolicyViolation struct {
	Rule      string
	Statement string
}

func (v *PolicyViolation) Error() string {
	if v.Rule == RuleSelectPrefix {
		return "statement must start with SELECT"
	}
	return fmt.Sprintf("statement contains forbidden operation (%s)", v.Rule)
}

// CleanSQL trims the statement and strips one trailing semicolon.
func CleanSQL(statement string) string {
	cleaned := strings.TrimSpace(statement)
	cleaned = strings.TrimSuffix(cleaned, ";")
	return strings.TrimSpace(cleaned)
}

// Validate applies the read-only policy and returns the cleaned statement
// that must be handed to the executor unchanged.
func Validate(statement string) (string, error) {
	cleaned := CleanSQL(statement)
	if !strings.HasPrefix(strings.ToUpper(cleaned), "SELECT") {
		return cleaned, &PolicyViolation{Rule: RuleSelectPrefix, Statement: cleaned}
	}
	for _, rule := range forbiddenRules {
		if rule.pattern.MatchString(cleaned) {
			return cleaned, &PolicyViolation{Rule: rule.name, Statement: cleaned}
		}
	}
	return cleaned, nil
}
