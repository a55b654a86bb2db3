package llm

import (
	"context"
	"fmt"
	"strings"

	"csvquery-backend/internal/domain"
)

// SQLGenerator converts a natural-language question into a SQL query
// against a single known table.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question, tableName string, schema []domain.Column, samples []map[string]any) (string, error)
}

// GenerateSQL asks the model for a DuckDB SELECT over the given table. The
// prompt carries the inferred schema and a handful of sample rows so the
// model sees real value formats.
func (c *Client) GenerateSQL(ctx context.Context, question, tableName string, schema []domain.Column, samples []map[string]any) (string, error) {
	var schemaDesc strings.Builder
	for _, col := range schema {
		fmt.Fprintf(&schemaDesc, "- %s (%s)\n", col.Name, col.Type)
	}

	var sampleDesc strings.Builder
	if len(samples) > 0 {
		sampleDesc.WriteString("Sample data (first few rows):\n")
		for i, row := range samples {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&sampleDesc, "\nRow %d:\n", i+1)
			for _, col := range schema {
				fmt.Fprintf(&sampleDesc, "  %s: %v\n", col.Name, row[col.Name])
			}
		}
	}

	systemPrompt := fmt.Sprintf(`You are an SQL expert that converts natural language questions into DuckDB SQL queries.
The table name is %q with these columns:

%s
%s
Important rules:
1. Only return the SQL query, no explanations or additional text
2. Use proper column names and types as shown above
3. Always put column names in double quotes to handle special characters
4. Numeric-looking text columns may contain commas as thousand separators; use REPLACE(col, ',', '')::BIGINT for numeric calculations
5. Limit results to 1000 rows unless specifically asked for more
6. For aggregations, use meaningful column aliases
7. If the question is unclear, return a simple 'SELECT * FROM %q LIMIT 10'`,
		tableName, schemaDesc.String(), sampleDesc.String(), tableName)

	raw, err := c.complete(ctx, systemPrompt, "Convert this to SQL: "+question, 500)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSQLGeneration, err)
	}

	sql := stripCodeFences(raw)
	if !strings.Contains(strings.ToUpper(sql), "SELECT") || !strings.Contains(sql, tableName) {
		return "", fmt.Errorf("%w: generated SQL appears invalid: %s", ErrSQLGeneration, sql)
	}
	return sql, nil
}
