package store

import (
	"context"

	"csvquery-backend/internal/domain"
)

// Store defines persistence behavior for dataset versions and query logs.
type Store interface {
	RegisterVersion(ctx context.Context, v *domain.DatasetVersion) error
	LatestVersion(ctx context.Context, datasetID, userID string) (*domain.DatasetVersion, error)
	SetVersionStatus(ctx context.Context, datasetID, versionID, userID string, status domain.VersionStatus) error
	LogQuery(ctx context.Context, entry *domain.QueryLog) error
	QueryHistory(ctx context.Context, datasetID, userID string, limit int) ([]domain.QueryLog, error)
}
