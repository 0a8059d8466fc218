// Package sandbox deploys a generated bundle into an isolated execution
// environment and exercises it with generated tests. The only channel to
// the environment is a shared workspace: files in, completion marker and
// logs out. No command execution channel is assumed.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// MarkerFile is the zero-byte completion marker the launcher writes only
// after the result log is finalized.
const MarkerFile = ".forge-done"

// Workspace is the narrow capability surface over one sandbox workspace.
// The backing mechanism (shared volume, object storage, remote executor)
// is swappable behind this interface.
type Workspace interface {
	// Write materializes the given files, creating parent directories
	Write(files map[string][]byte) error
	// Poll blocks until the completion marker appears or ctx expires
	Poll(ctx context.Context) error
	// Read returns the content of one workspace file
	Read(path string) ([]byte, error)
	// Root returns the workspace location for diagnostics
	Root() string
	// Destroy wipes the workspace
	Destroy() error
}

// Provider creates fresh, uniquely named workspaces
type Provider interface {
	Create(runID string, attempt int) (Workspace, error)
}

// LocalProvider creates workspaces under a base directory on a shared
// filesystem.
type LocalProvider struct {
	BaseDir      string
	PollInterval time.Duration
}

// Create implements Provider. Each workspace gets a unique name so a
// rebuilt attempt never sees files from a previous one.
func (p *LocalProvider) Create(runID string, attempt int) (Workspace, error) {
	name := fmt.Sprintf("%s-a%d-%s", runID, attempt, uuid.NewString()[:8])
	root := filepath.Join(p.BaseDir, name)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	interval := p.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &localWorkspace{root: root, pollInterval: interval}, nil
}

type localWorkspace struct {
	root         string
	pollInterval time.Duration
}

func (w *localWorkspace) Root() string { return w.root }

func (w *localWorkspace) Write(files map[string][]byte) error {
	for path, content := range files {
		dst := filepath.Join(w.root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("writing workspace file %s: %w", path, err)
		}
		mode := os.FileMode(0644)
		if filepath.Ext(path) == ".sh" {
			mode = 0755
		}
		if err := os.WriteFile(dst, content, mode); err != nil {
			return fmt.Errorf("writing workspace file %s: %w", path, err)
		}
	}
	return nil
}

// Poll waits for the completion marker. A filesystem watch shortens the
// wait when the backing store supports it; the ticker is the fallback
// since the executor has no push-notification channel.
func (w *localWorkspace) Poll(ctx context.Context) error {
	marker := filepath.Join(w.root, MarkerFile)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}

	var watchEvents chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(w.root); err == nil {
			watchEvents = make(chan fsnotify.Event, 16)
			go func() {
				for ev := range watcher.Events {
					select {
					case watchEvents <- ev:
					default:
					}
				}
			}()
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for sandbox completion: %w", ctx.Err())
		case ev := <-watchEvents:
			if filepath.Base(ev.Name) == MarkerFile {
				return nil
			}
		case <-ticker.C:
			if _, err := os.Stat(marker); err == nil {
				return nil
			}
		}
	}
}

func (w *localWorkspace) Read(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(w.root, filepath.FromSlash(path)))
}

func (w *localWorkspace) Destroy() error {
	return os.RemoveAll(w.root)
}
