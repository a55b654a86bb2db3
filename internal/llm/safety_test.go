package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySQLSafety(t *testing.T) {
	const table = "sales_vabc12345"

	tests := []struct {
		name    string
		sql     string
		wantErr string
	}{
		{
			name: "plain select",
			sql:  `SELECT * FROM "sales_vabc12345" LIMIT 10`,
		},
		{
			name: "aggregation with alias",
			sql:  `SELECT "region", sum("amount") AS total FROM sales_vabc12345 GROUP BY "region"`,
		},
		{
			name: "cte",
			sql:  `WITH t AS (SELECT * FROM "sales_vabc12345") SELECT count(*) FROM "sales_vabc12345"`,
		},
		{
			name:    "not a select",
			sql:     `SHOW TABLES`,
			wantErr: "only SELECT",
		},
		{
			name:    "piggybacked statement",
			sql:     `SELECT * FROM "sales_vabc12345"; DROP TABLE "sales_vabc12345"`,
			wantErr: "multiple statements",
		},
		{
			name:    "ddl keyword",
			sql:     `SELECT * FROM "sales_vabc12345" UNION SELECT * FROM read_csv_auto('/etc/passwd') -- CREATE`,
			wantErr: "disallowed keyword",
		},
		{
			name:    "foreign table",
			sql:     `SELECT * FROM "other_v99999999"`,
			wantErr: "outside the dataset",
		},
		{
			name: "column containing keyword substring is fine",
			sql:  `SELECT "created_at", "updated_at" FROM "sales_vabc12345"`,
		},
		{
			name: "trailing semicolon tolerated",
			sql:  `SELECT * FROM "sales_vabc12345";`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySQLSafety(tt.sql, table)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "SELECT 1", "SELECT 1"},
		{"plain fences", "```\nSELECT 1\n```", "SELECT 1"},
		{"sql fences", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"multiline", "```sql\nSELECT a\nFROM b\n```", "SELECT a\nFROM b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.in))
		})
	}
}
