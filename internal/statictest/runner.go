// Package statictest implements the deterministic test runner: cheap
// language-level checks over a generated bundle, short-circuiting on the
// first category with findings. The stage runs once per run; its patches
// are applied once and the checks are not re-run.
package statictest

import (
	"context"

	"github.com/forgeworks/appforge/internal/domain"
	"go.uber.org/zap"
)

// Runner performs the single-pass deterministic checks
type Runner struct {
	python  string
	catalog []KnownName
	logger  *zap.Logger
}

// NewRunner creates a Runner using the embedded known-name catalogue.
// python is the interpreter used for the smoke run ("" = "python3").
func NewRunner(python string, logger *zap.Logger) (*Runner, error) {
	if python == "" {
		python = "python3"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	return &Runner{python: python, catalog: catalog, logger: logger.Named("statictest")}, nil
}

// Check runs the three check categories against the bundle and returns a
// report with zero or more patch requests. Categories short-circuit: a
// syntax finding suppresses the import checks, and both suppress the
// smoke run.
func (r *Runner) Check(ctx context.Context, b domain.CodeBundle, entrypoint string) (*domain.DeterministicReport, error) {
	report := &domain.DeterministicReport{}

	syntaxPatches := r.checkSyntax(ctx, b)
	if len(syntaxPatches) > 0 {
		report.SyntaxErrors = len(syntaxPatches)
		report.Patches = syntaxPatches
		r.logger.Info("syntax errors found", zap.Int("files", len(syntaxPatches)))
		return report, nil
	}

	importPatches := r.checkImports(b)
	if len(importPatches) > 0 {
		report.MissingImports = len(importPatches)
		report.Patches = importPatches
		r.logger.Info("missing imports found", zap.Int("patches", len(importPatches)))
		return report, nil
	}

	smokePatches, ok, err := r.smokeRun(ctx, b, entrypoint)
	if err != nil {
		return nil, err
	}
	report.SmokeRunOK = ok
	report.Patches = smokePatches
	return report, nil
}
