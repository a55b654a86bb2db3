package ingest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"csvquery-backend/internal/logging"
)

// Reaper periodically deletes staging directories that were abandoned
// mid-upload. Deletions are independent and idempotent, so a crash mid-sweep
// simply leaves the rest for the next run.
type Reaper struct {
	fs       afero.Fs
	root     string
	ttl      time.Duration
	interval time.Duration

	now func() time.Time
}

// NewReaper sweeps root on the given filesystem, removing per-dataset
// staging directories older than ttl.
func NewReaper(fs afero.Fs, root string, ttl, interval time.Duration) *Reaper {
	return &Reaper{
		fs:       fs,
		root:     root,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on a fixed schedule until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep walks the two-level staging tree (user -> dataset) once and removes
// stale dataset directories. Failures are logged and swallowed; the sweep
// always continues to the next directory.
func (r *Reaper) Sweep(ctx context.Context) {
	users, err := afero.ReadDir(r.fs, r.root)
	if err != nil {
		logging.Warnf(ctx, "reaper: read staging root: %v", err)
		return
	}

	cutoff := r.now().Add(-r.ttl)
	for _, user := range users {
		if !user.IsDir() {
			continue
		}
		userDir := filepath.Join(r.root, user.Name())
		datasets, err := afero.ReadDir(r.fs, userDir)
		if err != nil {
			logging.Warnf(ctx, "reaper: read %s: %v", userDir, err)
			continue
		}
		for _, dataset := range datasets {
			if !dataset.IsDir() {
				continue
			}
			if !dataset.ModTime().Before(cutoff) {
				continue
			}
			dir := filepath.Join(userDir, dataset.Name())
			if err := r.fs.RemoveAll(dir); err != nil {
				logging.Warnf(ctx, "reaper: remove %s: %v", dir, err)
				continue
			}
			logging.Infof(ctx, "reaper: removed stale upload %s", dir)
		}
	}
}
