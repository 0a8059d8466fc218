// Package maintenance prunes leftover sandbox workspaces and stale run
// blobs on a schedule. A crashed run can leave its workspace behind;
// workspaces are otherwise destroyed by the executor after each attempt.
package maintenance

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ArtifactIndex finds and releases blob references held by stale runs
type ArtifactIndex interface {
	StaleFailedBlobRefs(cutoff time.Time) ([]string, error)
	ClearBlobRef(ref string) error
}

// BlobDeleter removes one stored blob payload
type BlobDeleter interface {
	Delete(ref string) error
}

// Janitor removes sandbox workspaces older than the configured TTL and,
// when wired to the stores, blob payloads of long-failed runs.
type Janitor struct {
	workspaceDir string
	ttl          time.Duration
	index        ArtifactIndex
	blobs        BlobDeleter
	retention    time.Duration
	cron         *cron.Cron
	logger       *zap.Logger
}

// NewJanitor creates a janitor for the given workspace directory
func NewJanitor(workspaceDir string, ttl time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		workspaceDir: workspaceDir,
		ttl:          ttl,
		cron:         cron.New(),
		logger:       logger.Named("maintenance"),
	}
}

// Start schedules the hourly sweep and runs one immediately
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@hourly", j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	go j.Sweep()
	return nil
}

// PruneBlobs additionally sweeps blob payloads of runs that failed more
// than retention ago.
func (j *Janitor) PruneBlobs(index ArtifactIndex, blobs BlobDeleter, retention time.Duration) {
	j.index = index
	j.blobs = blobs
	j.retention = retention
}

// Stop stops the schedule; a sweep in flight runs to completion
func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Sweep removes expired workspace directories and stale failed-run blobs
func (j *Janitor) Sweep() {
	j.sweepWorkspaces()
	j.sweepBlobs()
}

func (j *Janitor) sweepBlobs() {
	if j.index == nil || j.blobs == nil {
		return
	}
	refs, err := j.index.StaleFailedBlobRefs(time.Now().Add(-j.retention))
	if err != nil {
		j.logger.Warn("listing stale blobs", zap.Error(err))
		return
	}
	pruned := 0
	for _, ref := range refs {
		if err := j.blobs.Delete(ref); err != nil {
			j.logger.Warn("deleting blob", zap.String("ref", ref), zap.Error(err))
			continue
		}
		if err := j.index.ClearBlobRef(ref); err != nil {
			j.logger.Warn("clearing blob ref", zap.String("ref", ref), zap.Error(err))
			continue
		}
		pruned++
	}
	if pruned > 0 {
		j.logger.Info("pruned stale blobs", zap.Int("pruned", pruned))
	}
}

func (j *Janitor) sweepWorkspaces() {
	entries, err := os.ReadDir(j.workspaceDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("reading workspace dir", zap.Error(err))
		}
		return
	}

	cutoff := time.Now().Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.workspaceDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("removing stale workspace", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("pruned stale workspaces", zap.Int("removed", removed))
	}
}
