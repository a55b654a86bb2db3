package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvquery-backend/internal/domain"
)

// PostgresStore implements Store using a PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database using the provided connection
// string and creates the schema if it does not exist yet.
func NewPostgresStore(ctx context.Context, conn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(conn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dataset_versions (
			id SERIAL PRIMARY KEY,
			dataset_id VARCHAR(128) NOT NULL,
			version_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			file_path TEXT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ DEFAULT now(),
			UNIQUE (dataset_id, version_id, user_id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS query_logs (
			id SERIAL PRIMARY KEY,
			dataset_id VARCHAR(128) NOT NULL,
			version_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			question TEXT NOT NULL,
			generated_sql TEXT,
			row_count INT,
			created_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresStore) RegisterVersion(ctx context.Context, v *domain.DatasetVersion) error {
	if v.Status == "" {
		v.Status = domain.VersionPending
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dataset_versions (dataset_id, version_id, user_id, file_path, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, v.DatasetID, v.VersionID, v.UserID, v.FilePath, string(v.Status)).Scan(&v.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateVersion
	}
	return err
}

// LatestVersion returns the most recently registered version for a dataset.
// Permanently failed versions are skipped; pending ones are returned as-is
// so callers observe the "registered but not yet queryable" window.
func (s *PostgresStore) LatestVersion(ctx context.Context, datasetID, userID string) (*domain.DatasetVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT dataset_id, version_id, user_id, file_path, status, created_at
		FROM dataset_versions
		WHERE dataset_id = $1 AND user_id = $2 AND status <> 'failed'
		ORDER BY created_at DESC
		LIMIT 1
	`, datasetID, userID)
	var v domain.DatasetVersion
	var status string
	err := row.Scan(&v.DatasetID, &v.VersionID, &v.UserID, &v.FilePath, &status, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Status = domain.VersionStatus(status)
	return &v, nil
}

func (s *PostgresStore) SetVersionStatus(ctx context.Context, datasetID, versionID, userID string, status domain.VersionStatus) error {
	res, err := s.pool.Exec(ctx, `
		UPDATE dataset_versions SET status=$4
		WHERE dataset_id=$1 AND version_id=$2 AND user_id=$3
	`, datasetID, versionID, userID, string(status))
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

func (s *PostgresStore) LogQuery(ctx context.Context, entry *domain.QueryLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_logs (dataset_id, version_id, user_id, question, generated_sql, row_count)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.DatasetID, entry.VersionID, entry.UserID, entry.Question, entry.GeneratedSQL, entry.RowCount)
	return err
}

func (s *PostgresStore) QueryHistory(ctx context.Context, datasetID, userID string, limit int) ([]domain.QueryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT dataset_id, version_id, question, generated_sql, row_count, created_at
		FROM query_logs
		WHERE dataset_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, datasetID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.QueryLog
	for rows.Next() {
		var entry domain.QueryLog
		if err := rows.Scan(
			&entry.DatasetID,
			&entry.VersionID,
			&entry.Question,
			&entry.GeneratedSQL,
			&entry.RowCount,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
