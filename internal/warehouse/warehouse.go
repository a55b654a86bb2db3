// Package warehouse wraps the embedded DuckDB engine that holds each user's
// materialized tables. Every user gets an isolated database file; handles
// are kept in an explicit pool with one writer lock per user so table
// replacement never races a concurrent reader of "latest version".
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"csvquery-backend/internal/domain"
)

// ErrTableNotFound indicates the requested table does not exist in the
// user's database.
var ErrTableNotFound = errors.New("table not found")

type userDB struct {
	mu sync.Mutex // serializes writers per user namespace
	db *sql.DB
}

// Warehouse manages per-user DuckDB databases under a common root.
type Warehouse struct {
	root string

	mu      sync.Mutex
	handles map[string]*userDB
}

// New creates a Warehouse rooted at root. Database files live at
// {root}/{user_id}/db.duckdb and are created on first use.
func New(root string) *Warehouse {
	return &Warehouse{
		root:    root,
		handles: make(map[string]*userDB),
	}
}

// DBPath returns the path of a user's database file.
func (w *Warehouse) DBPath(userID string) string {
	return filepath.Join(w.root, userID, "db.duckdb")
}

func (w *Warehouse) handle(userID string) (*userDB, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if h, ok := w.handles[userID]; ok {
		return h, nil
	}

	dbPath := w.DBPath(userID)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create user db dir: %w", err)
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb for user %s: %w", userID, err)
	}
	h := &userDB{db: db}
	w.handles[userID] = h
	return h, nil
}

// evict drops a cached handle after a failure so the next call starts from
// a fresh connection instead of a possibly broken one.
func (w *Warehouse) evict(userID string, h *userDB) {
	w.mu.Lock()
	if w.handles[userID] == h {
		delete(w.handles, userID)
	}
	w.mu.Unlock()
	_ = h.db.Close()
}

// Close releases every cached database handle.
func (w *Warehouse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for userID, h := range w.handles {
		if err := h.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.handles, userID)
	}
	return firstErr
}

// CreateOrReplaceTable materializes csvPath into the versioned table for
// (datasetID, versionID), inferring the schema from the file. Replace
// semantics make re-running ingestion for the same version key idempotent.
func (w *Warehouse) CreateOrReplaceTable(ctx context.Context, userID, datasetID, versionID, csvPath string) error {
	h, err := w.handle(userID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	tableName := domain.TableName(datasetID, versionID)
	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s)`,
		quoteIdent(tableName), quoteString(csvPath),
	)
	if _, err := h.db.ExecContext(ctx, query); err != nil {
		w.evict(userID, h)
		return fmt.Errorf("materialize table %s: %w", tableName, err)
	}
	return nil
}

// TableSchema returns the inferred columns of a materialized table.
func (w *Warehouse) TableSchema(ctx context.Context, userID, tableName string) ([]domain.Column, error) {
	h, err := w.handle(userID)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = 'main'
		ORDER BY ordinal_position
	`, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
	}
	return cols, nil
}

// RowCount reports the number of rows in a materialized table.
func (w *Warehouse) RowCount(ctx context.Context, userID, tableName string) (int64, error) {
	h, err := w.handle(userID)
	if err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, quoteIdent(tableName))
	if err := h.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListTables returns the table names in a user's database.
func (w *Warehouse) ListTables(ctx context.Context, userID string) ([]string, error) {
	h, err := w.handle(userID)
	if err != nil {
		return nil, err
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables WHERE table_schema = 'main'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Query runs a SQL statement against the user's database and returns rows
// as generic maps, one per row.
func (w *Warehouse) Query(ctx context.Context, userID, query string) ([]map[string]any, error) {
	_, rows, err := w.QueryRows(ctx, userID, query)
	return rows, err
}

// QueryRows is Query plus the result column names in statement order.
func (w *Warehouse) QueryRows(ctx context.Context, userID, query string) ([]string, []map[string]any, error) {
	h, err := w.handle(userID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return columns, results, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
