// Package bundle implements the patch application protocol shared by every
// corrective stage: regenerate only the named files, carry everything else
// over byte-identical.
package bundle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forgeworks/appforge/internal/domain"
)

// FileRegenerator regenerates a single file. The rest of the bundle is
// passed as immutable context and must not be modified.
type FileRegenerator interface {
	RegenerateFile(ctx context.Context, b domain.CodeBundle, req domain.FilePatchRequest) (string, error)
}

// ApplyPatches produces a complete new bundle from old and the given patch
// requests. Unnamed files are carried over unchanged; named files are
// regenerated and must come back non-empty. Requests naming the same path
// are merged into one regeneration with concatenated instructions.
func ApplyPatches(ctx context.Context, old domain.CodeBundle, reqs []domain.FilePatchRequest, regen FileRegenerator) (domain.CodeBundle, error) {
	if len(reqs) == 0 {
		return old, nil
	}

	merged := mergeRequests(reqs)
	out := old.Clone()

	paths := make([]string, 0, len(merged))
	for p := range merged {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		req := merged[path]
		content, err := regen.RegenerateFile(ctx, old, req)
		if err != nil {
			return nil, fmt.Errorf("regenerating %s: %w", path, err)
		}
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("regenerating %s: got empty file", path)
		}
		out[path] = content
	}

	if len(out) < len(old) {
		return nil, fmt.Errorf("patch application dropped files: had %d, got %d", len(old), len(out))
	}
	return out, nil
}

func mergeRequests(reqs []domain.FilePatchRequest) map[string]domain.FilePatchRequest {
	merged := make(map[string]domain.FilePatchRequest)
	for _, req := range reqs {
		existing, ok := merged[req.Path]
		if !ok {
			merged[req.Path] = req
			continue
		}
		existing.Reason = existing.Reason + "; " + req.Reason
		existing.Instructions = existing.Instructions + "\n" + req.Instructions
		merged[req.Path] = existing
	}
	return merged
}
