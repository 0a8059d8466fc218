package bundle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/forgeworks/appforge/internal/domain"
)

type fakeRegen struct {
	content map[string]string
	err     error
	calls   []domain.FilePatchRequest
}

func (f *fakeRegen) RegenerateFile(ctx context.Context, b domain.CodeBundle, req domain.FilePatchRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	if content, ok := f.content[req.Path]; ok {
		return content, nil
	}
	return "regenerated " + req.Path, nil
}

func TestApplyPatchesNoRequestsReturnsSameBundle(t *testing.T) {
	old := domain.CodeBundle{"app/main.py": "original"}
	regen := &fakeRegen{}

	out, err := ApplyPatches(context.Background(), old, nil, regen)
	if err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}
	if diff := cmp.Diff(old, out); diff != "" {
		t.Errorf("bundle changed without requests (-want +got):\n%s", diff)
	}
	if len(regen.calls) != 0 {
		t.Errorf("regenerator called %d times, want 0", len(regen.calls))
	}
}

func TestApplyPatchesUnnamedFilesUntouched(t *testing.T) {
	old := domain.CodeBundle{
		"app/main.py":   "original main",
		"app/routes.py": "original routes",
		"app/models.py": "original models",
	}
	reqs := []domain.FilePatchRequest{
		{Path: "app/routes.py", Reason: "bug", Instructions: "fix it"},
	}

	out, err := ApplyPatches(context.Background(), old, reqs, &fakeRegen{})
	if err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}

	want := domain.CodeBundle{
		"app/main.py":   "original main",
		"app/routes.py": "regenerated app/routes.py",
		"app/models.py": "original models",
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("bundle mismatch (-want +got):\n%s", diff)
	}
	// The input bundle itself must stay untouched.
	if old["app/routes.py"] != "original routes" {
		t.Error("input bundle was mutated")
	}
}

func TestApplyPatchesMergesDuplicatePaths(t *testing.T) {
	old := domain.CodeBundle{"app/main.py": "original"}
	reqs := []domain.FilePatchRequest{
		{Path: "app/main.py", Reason: "syntax error", Instructions: "close the paren"},
		{Path: "app/main.py", Reason: "missing import", Instructions: "import uuid"},
	}
	regen := &fakeRegen{}

	if _, err := ApplyPatches(context.Background(), old, reqs, regen); err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}
	if len(regen.calls) != 1 {
		t.Fatalf("regenerator called %d times, want 1", len(regen.calls))
	}
	merged := regen.calls[0]
	if merged.Reason != "syntax error; missing import" {
		t.Errorf("merged reason = %q", merged.Reason)
	}
	if merged.Instructions != "close the paren\nimport uuid" {
		t.Errorf("merged instructions = %q", merged.Instructions)
	}
}

func TestApplyPatchesEmptyRegenerationFails(t *testing.T) {
	old := domain.CodeBundle{"app/main.py": "original"}
	reqs := []domain.FilePatchRequest{{Path: "app/main.py", Reason: "bug"}}
	regen := &fakeRegen{content: map[string]string{"app/main.py": "  \n\t"}}

	if _, err := ApplyPatches(context.Background(), old, reqs, regen); err == nil {
		t.Fatal("expected error for empty regenerated content")
	}
}

func TestApplyPatchesRegeneratorErrorPropagates(t *testing.T) {
	boom := errors.New("backend unavailable")
	old := domain.CodeBundle{"app/main.py": "original"}
	reqs := []domain.FilePatchRequest{{Path: "app/main.py", Reason: "bug"}}

	_, err := ApplyPatches(context.Background(), old, reqs, &fakeRegen{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestApplyPatchesCanAddNewFiles(t *testing.T) {
	old := domain.CodeBundle{"app/main.py": "original"}
	reqs := []domain.FilePatchRequest{
		{Path: "app/routes.py", Reason: "missing module", Instructions: "create it"},
	}

	out, err := ApplyPatches(context.Background(), old, reqs, &fakeRegen{})
	if err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d files, want 2", len(out))
	}
	if out["app/main.py"] != "original" {
		t.Error("existing file changed")
	}
}

func TestApplyPatchesDeterministicOrder(t *testing.T) {
	old := domain.CodeBundle{"a.py": "a", "b.py": "b", "c.py": "c"}
	reqs := []domain.FilePatchRequest{
		{Path: "c.py", Reason: "r"},
		{Path: "a.py", Reason: "r"},
		{Path: "b.py", Reason: "r"},
	}
	regen := &fakeRegen{}

	if _, err := ApplyPatches(context.Background(), old, reqs, regen); err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}
	var got []string
	for _, call := range regen.calls {
		got = append(got, call.Path)
	}
	want := fmt.Sprint([]string{"a.py", "b.py", "c.py"})
	if fmt.Sprint(got) != want {
		t.Errorf("apply order = %v, want %v", got, want)
	}
}
