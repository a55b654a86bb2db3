package staging

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// Assemble concatenates staged chunks 0..totalChunks-1 in strict index order
// into dest, reconstructing the original upload byte-for-byte regardless of
// arrival order. It fails fast on the first missing index and never leaves a
// partial destination file behind.
func (s *Store) Assemble(userID, datasetID string, totalChunks int, dest string) (err error) {
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	out, err := s.fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			_ = s.fs.Remove(dest)
		}
	}()

	for i := 0; i < totalChunks; i++ {
		chunkPath := s.ChunkPath(userID, datasetID, i)
		exists, statErr := afero.Exists(s.fs, chunkPath)
		if statErr != nil {
			return fmt.Errorf("stat chunk %d: %w", i, statErr)
		}
		if !exists {
			return fmt.Errorf("%w: index %d of %d", ErrMissingChunk, i, totalChunks)
		}

		in, openErr := s.fs.Open(chunkPath)
		if openErr != nil {
			return fmt.Errorf("open chunk %d: %w", i, openErr)
		}
		if _, copyErr := io.Copy(out, in); copyErr != nil {
			in.Close()
			return fmt.Errorf("append chunk %d: %w", i, copyErr)
		}
		in.Close()
	}

	if closeErr := out.Close(); closeErr != nil {
		err = fmt.Errorf("flush destination file: %w", closeErr)
		return err
	}
	return nil
}
