package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var dangerousKeywords = regexp.MustCompile(
	`(?i)\b(DELETE|DROP|TRUNCATE|ALTER|COPY|GRANT|REVOKE|CREATE|INSERT|UPDATE|ATTACH|PRAGMA)\b`,
)

var fromTables = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("?[A-Za-z0-9_]+"?)`)

// VerifySQLSafety rejects generated SQL that is anything other than a single
// SELECT over the allowed table. The check is intentionally coarse: the
// model output is untrusted, and each user's database holds only their own
// tables, so this is a guardrail rather than a sandbox.
func VerifySQLSafety(sql, allowedTable string) error {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT statements are allowed")
	}
	if strings.Contains(strings.TrimRight(trimmed, "; \t\n"), ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	if m := dangerousKeywords.FindString(trimmed); m != "" {
		return fmt.Errorf("disallowed keyword %q", strings.ToUpper(m))
	}

	for _, match := range fromTables.FindAllStringSubmatch(trimmed, -1) {
		table := strings.Trim(match[1], `"`)
		if !strings.EqualFold(table, allowedTable) {
			return fmt.Errorf("query references table %q outside the dataset", table)
		}
	}
	return nil
}
