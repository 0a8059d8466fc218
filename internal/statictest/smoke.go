package statictest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/pytrace"
)

const smokeTimeout = 30 * time.Second

// smokeRun spawns a disposable interpreter that imports the generated
// entrypoint. A runtime import error is mapped back to the file that
// raised it; when no file can be implicated the entrypoint is patched.
func (r *Runner) smokeRun(ctx context.Context, b domain.CodeBundle, entrypoint string) ([]domain.FilePatchRequest, bool, error) {
	dir, err := os.MkdirTemp("", "appforge-smoke-")
	if err != nil {
		return nil, false, fmt.Errorf("creating smoke dir: %w", err)
	}
	defer os.RemoveAll(dir)

	for _, path := range b.Paths() {
		dst := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, false, err
		}
		if err := os.WriteFile(dst, []byte(b[path]), 0644); err != nil {
			return nil, false, err
		}
	}

	module := entrypointModule(entrypoint)
	ctx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.python, "-c", "import "+module)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil, true, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		r.logger.Warn("python interpreter not found, skipping smoke run", zap.String("python", r.python))
		return nil, true, nil
	}

	diag := pytrace.Parse(string(out))
	if diag == nil {
		return []domain.FilePatchRequest{{
			Path:         entrypoint,
			Reason:       "importing the entrypoint failed: " + firstLine(string(out)),
			Instructions: "Fix the entrypoint so that importing it succeeds.",
		}}, false, nil
	}

	path, line := diag.Implicate(b.Paths())
	if path == "" {
		path = entrypoint
	}
	reason := diag.Summary()
	if line > 0 {
		reason = fmt.Sprintf("%s (line %d)", reason, line)
	}
	return []domain.FilePatchRequest{{
		Path:         path,
		Reason:       reason,
		Instructions: "Fix the import error so the module can be imported: " + diag.Summary(),
	}}, false, nil
}

// entrypointModule converts "app/main.py" to "app.main"
func entrypointModule(entrypoint string) string {
	module := strings.TrimSuffix(entrypoint, ".py")
	return strings.ReplaceAll(module, "/", ".")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
