//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/sandbox"
)

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// scriptedBackend answers each generation capability with canned output,
// routed by the system prompt it receives.
type scriptedBackend struct {
	requirements string
	architecture string
	files        map[string]string
	tests        string
	review       string
	patch        string
}

func (b *scriptedBackend) Complete(ctx context.Context, system, user string) (string, error) {
	switch {
	case strings.Contains(system, "structured backend requirements"):
		return b.requirements, nil
	case strings.Contains(system, "file layout"):
		return b.architecture, nil
	case strings.Contains(system, "one complete source file"):
		for path, content := range b.files {
			if strings.Contains(user, "Target file: "+path) {
				return content, nil
			}
		}
		return "", fmt.Errorf("no scripted content for request: %.80s", user)
	case strings.Contains(system, "pytest tests"):
		return b.tests, nil
	case strings.Contains(system, "reviewer"):
		return b.review, nil
	case strings.Contains(system, "regenerate exactly one file"):
		return b.patch, nil
	default:
		return "", fmt.Errorf("unrecognized system prompt: %.80s", system)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// memWorkspace completes the launcher protocol synchronously: writing the
// bundle immediately produces a result log and the done marker.
type memWorkspace struct {
	root   string
	files  map[string][]byte
	result string
	output string
}

func (w *memWorkspace) Write(files map[string][]byte) error {
	for path, content := range files {
		w.files[path] = content
	}
	w.files[sandbox.ResultLog] = []byte(w.result)
	w.files[sandbox.OutputLog] = []byte(w.output)
	w.files[sandbox.MarkerFile] = nil
	return nil
}

func (w *memWorkspace) Poll(ctx context.Context) error {
	if _, ok := w.files[sandbox.MarkerFile]; ok {
		return nil
	}
	return ctx.Err()
}

func (w *memWorkspace) Read(path string) ([]byte, error) {
	content, ok := w.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: not written", path)
	}
	return content, nil
}

func (w *memWorkspace) Root() string { return w.root }

func (w *memWorkspace) Destroy() error { return nil }

// memProvider hands out memWorkspaces with a fixed result log and records
// how many attempts asked for one.
type memProvider struct {
	result  string
	output  string
	created int
}

func (p *memProvider) Create(runID string, attempt int) (sandbox.Workspace, error) {
	p.created++
	return &memWorkspace{
		root:   fmt.Sprintf("/mem/%s-a%d", runID, attempt),
		files:  make(map[string][]byte),
		result: p.result,
		output: p.output,
	}, nil
}

func passingResultLog() string {
	return "INSTALL=ok\nHEALTH=ok\nPYTEST_EXIT=0\nDONE=1\n"
}

func cleanBundleScript(t *testing.T) *scriptedBackend {
	t.Helper()
	files := map[string]string{
		"app/main.py": "from fastapi import FastAPI\n\napp = FastAPI()\n\n\n@app.get(\"/items\")\ndef list_items():\n    return []\n",
		"requirements.txt": "fastapi==0.115.0\nuvicorn==0.30.0\n",
	}
	return &scriptedBackend{
		requirements: mustJSON(t, domain.Requirements{
			ProjectName: "item_service",
			Description: "Tracks items",
			Entities:    []domain.Entity{{Name: "Item", Fields: []string{"id", "name"}}},
			Endpoints:   []domain.Endpoint{{Method: "GET", Path: "/items", Detail: "list items"}},
		}),
		architecture: mustJSON(t, domain.Architecture{
			Entrypoint: "app/main.py",
			Files: []domain.PlannedFile{
				{Path: "app/main.py", Purpose: "application entrypoint"},
				{Path: "requirements.txt", Purpose: "python dependencies"},
			},
		}),
		files: files,
		tests: mustJSON(t, map[string]string{
			"tests/test_items.py": "from fastapi.testclient import TestClient\n\nfrom app.main import app\n\n\ndef test_list_items():\n    assert TestClient(app).get(\"/items\").status_code == 200\n",
		}),
		review: mustJSON(t, domain.ReviewResponse{
			SecurityScore: 9,
			Approved:      true,
		}),
		patch: "from fastapi import FastAPI\n\napp = FastAPI()\n",
	}
}
