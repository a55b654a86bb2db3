package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"csvquery-backend/internal/domain"
	"csvquery-backend/internal/ingest"
	"csvquery-backend/internal/logging"
	"csvquery-backend/internal/staging"
	"csvquery-backend/internal/store"
)

// Queue is the submit-and-forget boundary between the request path and the
// asynchronous ingestion workers.
type Queue interface {
	Submit(t *ingest.Task) (*ingest.TaskHandle, error)
}

// Service orchestrates chunk staging, version registration, and handing the
// completed upload to the ingestion queue.
type Service struct {
	staging *staging.Store
	store   store.Store
	queue   Queue
	dataDir string
}

// NewService constructs a Service instance.
func NewService(st *staging.Store, versions store.Store, queue Queue, dataDir string) *Service {
	return &Service{
		staging: st,
		store:   versions,
		queue:   queue,
		dataDir: dataDir,
	}
}

// SaveChunk persists one uploaded chunk. Receipt of the final index
// registers a new dataset version and enqueues the ingestion task; earlier
// indices are only acknowledged. Arrival order of non-final chunks does not
// matter, and prior indices are not verified here: a gap surfaces later, at
// assembly time.
func (s *Service) SaveChunk(ctx context.Context, userID, datasetID string, chunkIndex, totalChunks int, data io.Reader) (*domain.UploadResponse, error) {
	if userID == "" || datasetID == "" {
		return nil, fmt.Errorf("user_id and dataset_id are required")
	}
	if chunkIndex < 0 || totalChunks <= 0 || chunkIndex >= totalChunks {
		return nil, fmt.Errorf("invalid chunk index %d of %d", chunkIndex, totalChunks)
	}

	if _, err := s.staging.WriteChunk(userID, datasetID, chunkIndex, data); err != nil {
		return nil, fmt.Errorf("save chunk: %w", err)
	}

	if chunkIndex != totalChunks-1 {
		return &domain.UploadResponse{
			Status:    "received",
			Message:   fmt.Sprintf("Chunk %d/%d received.", chunkIndex+1, totalChunks),
			DatasetID: datasetID,
		}, nil
	}

	versionID := newVersionID()
	destPath := filepath.Join(s.dataDir, userID, fmt.Sprintf("%s-v%s.csv", datasetID, versionID))

	version := &domain.DatasetVersion{
		DatasetID: datasetID,
		VersionID: versionID,
		UserID:    userID,
		FilePath:  destPath,
		Status:    domain.VersionPending,
	}
	if err := s.store.RegisterVersion(ctx, version); err != nil {
		// Roll back the staged chunks so a rejected upload leaves no trace.
		if rmErr := s.staging.Remove(userID, datasetID); rmErr != nil {
			logging.Warnf(ctx, "rollback: remove staging dir: %v", rmErr)
		}
		return nil, fmt.Errorf("register version: %w", err)
	}

	if _, err := s.queue.Submit(&ingest.Task{
		UserID:      userID,
		DatasetID:   datasetID,
		VersionID:   versionID,
		TotalChunks: totalChunks,
		DestPath:    destPath,
	}); err != nil {
		if rmErr := s.staging.Remove(userID, datasetID); rmErr != nil {
			logging.Warnf(ctx, "rollback: remove staging dir: %v", rmErr)
		}
		return nil, fmt.Errorf("enqueue ingestion: %w", err)
	}

	logging.Infof(ctx, "final chunk received for %s/%s, processing version %s",
		userID, datasetID, versionID)

	return &domain.UploadResponse{
		Status:       "processing",
		Message:      "Final chunk received. Processing started.",
		DatasetID:    datasetID,
		VersionID:    versionID,
		IsFinalChunk: true,
	}, nil
}

// LatestVersion resolves the most recent non-failed version of a dataset.
func (s *Service) LatestVersion(ctx context.Context, datasetID, userID string) (*domain.DatasetVersion, error) {
	return s.store.LatestVersion(ctx, datasetID, userID)
}

// newVersionID returns a short random token. Collisions across the lifetime
// of a single dataset are treated as negligible.
func newVersionID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
