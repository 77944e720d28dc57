package nl2sql

import (
	"regexp"
	"strings"
)

// Patterns are tried in order; the first non-empty capture wins.
var extractPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?is)```sql\\b[ \t]*\\r?\\n?(.*?)```"),
	regexp.MustCompile("(?is)```[ \t]*\\r?\\n?(select\\b.*?)```"),
	regexp.MustCompile(`(?i)\b(select\s[^\n]*)`),
}

// ExtractSQL locates the SQL statement embedded in an assistant reply. It
// reports false when the reply is prose only.
func ExtractSQL(reply string) (string, bool) {
	for _, pattern := range extractPatterns {
		matches := pattern.FindStringSubmatch(reply)
		if len(matches) < 2 {
			continue
		}
		statement := strings.TrimSpace(matches[1])
		if statement == "" {
			continue
		}
		return statement, true
	}
	return "", false
}
