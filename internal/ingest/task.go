package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"csvquery-backend/internal/logging"
)

// State is the lifecycle position of an ingestion task.
type State string

const (
	StatePending           State = "pending"
	StateRunning           State = "running"
	StateRetrying          State = "retrying"
	StateSucceeded         State = "succeeded"
	StateFailedPermanently State = "failed_permanently"
)

// Task is one retryable unit of ingestion work: assemble the staged chunks
// for a registered dataset version and materialize the table.
type Task struct {
	UserID      string
	DatasetID   string
	VersionID   string
	TotalChunks int
	DestPath    string
}

// Outcome is the terminal result of a task, exposed through its handle.
type Outcome struct {
	State    State
	Attempts int
	Err      error
}

// Materializer loads an assembled CSV into the user's queryable namespace.
type Materializer interface {
	CreateOrReplaceTable(ctx context.Context, userID, datasetID, versionID, csvPath string) error
	DBPath(userID string) string
}

// runAttempt executes one full pass of the ingestion steps. Every step may
// fail; cleanup on failure removes the staging directory and any partially
// written destination file so a later attempt starts from scratch.
func (p *Pool) runAttempt(ctx context.Context, t *Task) error {
	if err := p.staging.Assemble(t.UserID, t.DatasetID, t.TotalChunks, t.DestPath); err != nil {
		p.cleanupFailed(ctx, t)
		return fmt.Errorf("assemble: %w", err)
	}

	if err := p.materializer.CreateOrReplaceTable(ctx, t.UserID, t.DatasetID, t.VersionID, t.DestPath); err != nil {
		p.cleanupFailed(ctx, t)
		return fmt.Errorf("materialize: %w", err)
	}

	// Chunks are no longer needed; the assembled CSV is retained.
	if err := p.staging.Remove(t.UserID, t.DatasetID); err != nil {
		logging.Warnf(ctx, "failed to remove staging dir for %s/%s: %v", t.UserID, t.DatasetID, err)
	}

	if err := p.verifyArtifacts(t); err != nil {
		return err
	}

	logging.Infof(ctx, "ingested dataset %s version %s for user %s",
		t.DatasetID, t.VersionID, t.UserID)
	return nil
}

// verifyArtifacts is a post-hoc sanity check that both the assembled CSV and
// the user's warehouse database exist after a successful run.
func (p *Pool) verifyArtifacts(t *Task) error {
	exists, err := afero.Exists(p.staging.Fs(), t.DestPath)
	if err != nil || !exists {
		return fmt.Errorf("assembled file missing at %s", t.DestPath)
	}
	if _, err := os.Stat(p.materializer.DBPath(t.UserID)); err != nil {
		return fmt.Errorf("warehouse database missing for user %s: %w", t.UserID, err)
	}
	return nil
}

func (p *Pool) cleanupFailed(ctx context.Context, t *Task) {
	if err := p.staging.Remove(t.UserID, t.DatasetID); err != nil {
		logging.Warnf(ctx, "cleanup: remove staging dir: %v", err)
	}
	if err := p.staging.Fs().Remove(t.DestPath); err != nil && !os.IsNotExist(err) {
		logging.Debugf(ctx, "cleanup: remove partial destination: %v", err)
	}
}

// fatal reports whether an attempt error must not be retried. Hitting the
// wall-clock ceiling kills the task outright.
func fatal(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
