package staging

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrMissingChunk indicates assembly found a gap in the staged chunk set.
// Use errors.Is to detect it; the wrapped message names the missing index.
var ErrMissingChunk = errors.New("missing chunk")

// Store persists in-flight upload chunks on disk until assembly.
//
// Layout is two levels under the base path: {user_id}/{dataset_id}/chunk_{i}.
// Chunks may arrive in any order; the index is only a filename. Concurrent
// writes for the same upload land on distinct paths, so no locking is needed.
type Store struct {
	fs       afero.Fs
	basePath string
}

// NewStore creates a Store rooted at basePath on the given filesystem.
func NewStore(fs afero.Fs, basePath string) (*Store, error) {
	if err := fs.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Store{fs: fs, basePath: basePath}, nil
}

// BasePath returns the staging root.
func (s *Store) BasePath() string { return s.basePath }

// Fs exposes the backing filesystem for the reaper sweep.
func (s *Store) Fs() afero.Fs { return s.fs }

// Dir returns the staging directory for one (user, dataset) upload attempt.
func (s *Store) Dir(userID, datasetID string) string {
	return filepath.Join(s.basePath, userID, datasetID)
}

// ChunkPath returns the on-disk location for a chunk.
func (s *Store) ChunkPath(userID, datasetID string, index int) string {
	return filepath.Join(s.Dir(userID, datasetID), fmt.Sprintf("chunk_%d", index))
}

// WriteChunk copies the incoming chunk reader to its staged location,
// creating parent directories as needed. Safe to call repeatedly for the
// same index; the last write wins.
func (s *Store) WriteChunk(userID, datasetID string, index int, data io.Reader) (int64, error) {
	chunkPath := s.ChunkPath(userID, datasetID, index)
	if err := s.fs.MkdirAll(filepath.Dir(chunkPath), 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}

	file, err := s.fs.Create(chunkPath)
	if err != nil {
		return 0, fmt.Errorf("create chunk file: %w", err)
	}

	written, err := io.Copy(file, data)
	if err != nil {
		file.Close()
		_ = s.fs.Remove(chunkPath)
		return 0, fmt.Errorf("write chunk %d: %w", index, err)
	}
	if err := file.Close(); err != nil {
		_ = s.fs.Remove(chunkPath)
		return 0, fmt.Errorf("close chunk %d: %w", index, err)
	}
	return written, nil
}

// Remove deletes the staging directory for one upload attempt.
func (s *Store) Remove(userID, datasetID string) error {
	return s.fs.RemoveAll(s.Dir(userID, datasetID))
}
