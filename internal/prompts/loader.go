package prompts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known template paths for the generation stages.
const (
	Requirements = "gen/requirements.md"
	Architecture = "gen/architecture.md"
	File         = "gen/file.md"
	Tests        = "gen/tests.md"
	Review       = "gen/review.md"
	Patch        = "gen/patch.md"
)

// Loader resolves prompt templates, preferring user overrides over the
// embedded defaults.
type Loader struct {
	overrideDirs []string // checked in order, first match wins
	cache        map[string]string
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]string),
	}
}

// DefaultLoader creates a loader with the standard override path
// ~/.config/appforge/prompts/.
func DefaultLoader() *Loader {
	home, _ := os.UserHomeDir()
	return NewLoader(filepath.Join(home, ".config", "appforge", "prompts"))
}

// Load returns the template content for path (e.g. "gen/review.md").
func (l *Loader) Load(path string) (string, error) {
	l.mu.RLock()
	if content, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return content, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = content
	l.mu.Unlock()
	return content, nil
}

func (l *Loader) loadContent(path string) (string, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, path)); err == nil {
			return strings.TrimRight(string(data), "\n"), nil
		}
	}
	data, err := fs.ReadFile(embeddedFS, path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// ClearCache drops cached templates so overrides are re-read.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]string)
	l.mu.Unlock()
}

var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// Default returns the global default loader.
func Default() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = DefaultLoader()
	})
	return defaultLoader
}
