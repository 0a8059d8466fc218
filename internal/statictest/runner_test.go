package statictest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/domain"
)

// testRunner uses a nonexistent interpreter so the smoke run is skipped
// and only the in-process checks decide the outcome.
func testRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner("definitely-not-a-python", nil)
	require.NoError(t, err)
	return r
}

func TestCheckCleanBundle(t *testing.T) {
	r := testRunner(t)
	b := domain.CodeBundle{
		"app/main.py": "from fastapi import FastAPI\n\napp = FastAPI()\n\n\n@app.get(\"/\")\ndef read_root():\n    return {\"ok\": True}\n",
		"requirements.txt": "fastapi\n",
	}

	report, err := r.Check(context.Background(), b, "app/main.py")
	require.NoError(t, err)
	assert.Empty(t, report.Patches)
	assert.Zero(t, report.SyntaxErrors)
	assert.Zero(t, report.MissingImports)
}

func TestCheckSyntaxError(t *testing.T) {
	r := testRunner(t)
	b := domain.CodeBundle{
		"app/main.py": "def broken(:\n    return 1\n",
	}

	report, err := r.Check(context.Background(), b, "app/main.py")
	require.NoError(t, err)
	require.Len(t, report.Patches, 1)
	assert.Equal(t, 1, report.SyntaxErrors)
	assert.Equal(t, "app/main.py", report.Patches[0].Path)
	assert.Contains(t, report.Patches[0].Reason, "parser error")
}

func TestCheckSyntaxShortCircuitsImports(t *testing.T) {
	r := testRunner(t)
	// One file has a syntax error; another uses FastAPI without importing
	// it. Only the syntax finding may surface.
	b := domain.CodeBundle{
		"app/broken.py": "class Broken(\n",
		"app/main.py":   "app = FastAPI()\n",
	}

	report, err := r.Check(context.Background(), b, "app/main.py")
	require.NoError(t, err)
	assert.Equal(t, 1, report.SyntaxErrors)
	assert.Zero(t, report.MissingImports)
	for _, p := range report.Patches {
		assert.Equal(t, "app/broken.py", p.Path)
	}
}

func TestCheckMissingImport(t *testing.T) {
	r := testRunner(t)
	b := domain.CodeBundle{
		"app/routes.py": "def list_items(db: Session = Depends(get_db)):\n    return db.query(Item).all()\n",
	}

	report, err := r.Check(context.Background(), b, "app/routes.py")
	require.NoError(t, err)
	require.NotEmpty(t, report.Patches)
	assert.Equal(t, len(report.Patches), report.MissingImports)

	var reasons []string
	for _, p := range report.Patches {
		assert.Equal(t, "app/routes.py", p.Path)
		reasons = append(reasons, p.Reason)
	}
	assert.Contains(t, reasons, `name "Session" is used but never imported`)
}

func TestCheckImportedNameIsNotFlagged(t *testing.T) {
	r := testRunner(t)
	b := domain.CodeBundle{
		"app/routes.py": "from sqlalchemy.orm import Session\n\n\ndef handler(db: Session):\n    return db\n",
	}

	report, err := r.Check(context.Background(), b, "app/routes.py")
	require.NoError(t, err)
	assert.Empty(t, report.Patches)
}

func TestCheckNameInCommentIsNotUse(t *testing.T) {
	r := testRunner(t)
	b := domain.CodeBundle{
		"app/main.py": "# uses FastAPI under the hood\nx = 1\n",
	}

	report, err := r.Check(context.Background(), b, "app/main.py")
	require.NoError(t, err)
	assert.Empty(t, report.Patches)
}

func TestCheckIgnoresNonPythonFiles(t *testing.T) {
	r := testRunner(t)
	b := domain.CodeBundle{
		"requirements.txt": "fastapi==(broken\n",
		"README.md":        "FastAPI service\n",
		"app/main.py":      "x = 1\n",
	}

	report, err := r.Check(context.Background(), b, "app/main.py")
	require.NoError(t, err)
	assert.Empty(t, report.Patches)
}

func TestCatalogLoads(t *testing.T) {
	catalog, err := loadCatalog()
	require.NoError(t, err)
	assert.NotEmpty(t, catalog)
	for _, kn := range catalog {
		assert.NotEmpty(t, kn.Name)
		assert.NotEmpty(t, kn.Import, "entry %s missing import", kn.Name)
	}
}
