package warehouse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvquery-backend/internal/domain"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const salesCSV = "region,amount,when\nnorth,10,2024-01-01\nsouth,20,2024-01-02\neast,30,2024-01-03\n"

func TestMaterializeAndInspect(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "warehouse"))
	defer w.Close()
	ctx := context.Background()

	csvPath := writeCSV(t, dir, "sales.csv", salesCSV)
	require.NoError(t, w.CreateOrReplaceTable(ctx, "u1", "sales", "abc12345", csvPath))

	table := domain.TableName("sales", "abc12345")
	schema, err := w.TableSchema(ctx, "u1", table)
	require.NoError(t, err)
	require.Len(t, schema, 3)
	assert.Equal(t, "region", schema[0].Name)
	assert.Equal(t, "amount", schema[1].Name)
	assert.Equal(t, "when", schema[2].Name)

	count, err := w.RowCount(ctx, "u1", table)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	cols, rows, err := w.QueryRows(ctx, "u1", `SELECT "region", "amount" FROM "sales_vabc12345" ORDER BY "amount"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount"}, cols)
	require.Len(t, rows, 3)
	assert.Equal(t, "north", rows[0]["region"])
}

func TestMaterializeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "warehouse"))
	defer w.Close()
	ctx := context.Background()

	csvPath := writeCSV(t, dir, "sales.csv", salesCSV)
	require.NoError(t, w.CreateOrReplaceTable(ctx, "u1", "sales", "abc12345", csvPath))
	require.NoError(t, w.CreateOrReplaceTable(ctx, "u1", "sales", "abc12345", csvPath))

	table := domain.TableName("sales", "abc12345")
	count, err := w.RowCount(ctx, "u1", table)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count, "replace semantics must not append")

	tables, err := w.ListTables(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{table}, tables, "no duplicate tables")

	schema, err := w.TableSchema(ctx, "u1", table)
	require.NoError(t, err)
	assert.Len(t, schema, 3)
}

func TestCrossTenantIsolation(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "warehouse"))
	defer w.Close()
	ctx := context.Background()

	u1CSV := writeCSV(t, dir, "u1.csv", "name,score\nalice,1\n")
	u2CSV := writeCSV(t, dir, "u2.csv", "name,score\nmallory,99\nmallory2,98\n")

	require.NoError(t, w.CreateOrReplaceTable(ctx, "u1", "d1", "v1", u1CSV))
	require.NoError(t, w.CreateOrReplaceTable(ctx, "u2", "d1", "v1", u2CSV))

	rows, err := w.Query(ctx, "u1", `SELECT "name" FROM "d1_vv1"`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["name"])

	rows, err = w.Query(ctx, "u2", `SELECT "name" FROM "d1_vv1" ORDER BY "score" DESC`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "mallory", rows[0]["name"])

	// Separate database files on disk.
	assert.NotEqual(t, w.DBPath("u1"), w.DBPath("u2"))
	_, err = os.Stat(w.DBPath("u1"))
	require.NoError(t, err)
	_, err = os.Stat(w.DBPath("u2"))
	require.NoError(t, err)
}

func TestTableSchemaNotFound(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "warehouse"))
	defer w.Close()

	_, err := w.TableSchema(context.Background(), "u1", "ghost_v0")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestMaterializeUnparsableFileFails(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "warehouse"))
	defer w.Close()

	err := w.CreateOrReplaceTable(context.Background(), "u1", "d1", "v1", filepath.Join(dir, "does-not-exist.csv"))
	require.Error(t, err)
}
