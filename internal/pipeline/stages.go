package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/bundle"
	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/progress"
	"github.com/forgeworks/appforge/internal/sandbox"
)

// ErrReviewRejected is returned when the review loop exhausts its budget
// and the exhaustion policy is to fail the run.
var ErrReviewRejected = errors.New("review loop exhausted without approval")

// drive runs the ordered stages against one run. Any returned error is
// terminal for the run.
func (o *Orchestrator) drive(ctx context.Context, run *domain.GenerationRun) (map[string]any, error) {
	reqs, err := o.stageRequirements(ctx, run)
	if err != nil {
		return nil, err
	}

	arch, err := o.stageArchitecture(ctx, run, reqs)
	if err != nil {
		return nil, err
	}

	code, err := o.stageImplementation(ctx, run, arch)
	if err != nil {
		return nil, err
	}

	code, err = o.stageDeterministicTests(ctx, run, code, arch.Entrypoint)
	if err != nil {
		return nil, err
	}

	tests, err := o.stageTestGeneration(ctx, run, code)
	if err != nil {
		return nil, err
	}

	code, reviewState, err := o.stageReviewLoop(ctx, run, code)
	if err != nil {
		return nil, err
	}

	sandboxResult, err := o.stageSandboxLoop(ctx, run, code, tests, arch.Entrypoint)
	if err != nil {
		return nil, err
	}

	last := sandboxResult.Attempts[len(sandboxResult.Attempts)-1]
	return map[string]any{
		"project_name":     run.ProjectName,
		"files":            len(sandboxResult.App),
		"test_files":       len(sandboxResult.Tests),
		"trust_score":      reviewState.Score,
		"review_approved":  reviewState.Approved,
		"sandbox_attempts": len(sandboxResult.Attempts),
		"tests_passed":     last.TestsPassed,
	}, nil
}

func (o *Orchestrator) stageRequirements(ctx context.Context, run *domain.GenerationRun) (*domain.Requirements, error) {
	stage := domain.StageRequirements
	o.stageStart(run.ID, stage)

	reqs, err := o.gen.GenerateRequirements(ctx, run.Prompt)
	if err != nil {
		return nil, fmt.Errorf("requirements stage: %w", err)
	}
	run.ProjectName = reqs.ProjectName
	if err := o.store.UpdateRunStatus(run.ID, domain.RunRunning, reqs.ProjectName, ""); err != nil {
		return nil, err
	}

	if _, err := o.persistArtifact(run.ID, stage, 1, domain.ArtifactRequirements, reqs); err != nil {
		return nil, err
	}
	o.stageDone(run.ID, stage, map[string]any{
		"project_name": reqs.ProjectName,
		"entities":     len(reqs.Entities),
		"endpoints":    len(reqs.Endpoints),
	})
	return reqs, nil
}

func (o *Orchestrator) stageArchitecture(ctx context.Context, run *domain.GenerationRun, reqs *domain.Requirements) (*domain.Architecture, error) {
	stage := domain.StageArchitecture
	o.stageStart(run.ID, stage)

	arch, err := o.gen.GenerateArchitecture(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("architecture stage: %w", err)
	}

	if _, err := o.persistArtifact(run.ID, stage, 1, domain.ArtifactArchitecture, arch); err != nil {
		return nil, err
	}
	o.stageDone(run.ID, stage, map[string]any{
		"entrypoint": arch.Entrypoint,
		"files":      len(arch.Files),
	})
	return arch, nil
}

// stageImplementation generates the planned files. Independent files are
// generated concurrently and assembled in plan order afterwards.
func (o *Orchestrator) stageImplementation(ctx context.Context, run *domain.GenerationRun, arch *domain.Architecture) (domain.CodeBundle, error) {
	stage := domain.StageImplementation
	o.stageStart(run.ID, stage)

	parallel := o.cfg.Generation.ParallelFiles
	if parallel < 1 {
		parallel = 1
	}

	code := make(domain.CodeBundle, len(arch.Files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, file := range arch.Files {
		g.Go(func() error {
			content, err := o.gen.GenerateFile(gctx, arch, file, nil)
			if err != nil {
				return fmt.Errorf("generating %s: %w", file.Path, err)
			}
			mu.Lock()
			code[file.Path] = content
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("implementation stage: %w", err)
	}

	if _, err := o.persistArtifact(run.ID, stage, 1, domain.ArtifactCodeBundle, code); err != nil {
		return nil, err
	}
	o.stageDone(run.ID, stage, map[string]any{"files": len(code)})
	o.logger.Info("implementation assembled", zap.String("run_id", run.ID), zap.Int("files", len(code)))
	return code, nil
}

// stageDeterministicTests runs the single-pass static checks. Patches are
// applied once and the checks are deliberately not re-run: the corrected
// bundle proceeds on the assumption the named fix resolves the named
// symptom, and anything left resurfaces in the sandbox.
func (o *Orchestrator) stageDeterministicTests(ctx context.Context, run *domain.GenerationRun, code domain.CodeBundle, entrypoint string) (domain.CodeBundle, error) {
	stage := domain.StageDeterministicTests
	o.stageStart(run.ID, stage)

	report, err := o.statics.Check(ctx, code, entrypoint)
	if err != nil {
		return nil, fmt.Errorf("deterministic tests stage: %w", err)
	}
	if _, err := o.persistArtifact(run.ID, stage, 1, domain.ArtifactDeterministicReport, report); err != nil {
		return nil, err
	}

	if len(report.Patches) > 0 {
		patched, err := bundle.ApplyPatches(ctx, code, report.Patches, o.gen)
		if err != nil {
			return nil, fmt.Errorf("deterministic tests stage: %w", err)
		}
		code = patched
		if _, err := o.persistArtifact(run.ID, stage, 2, domain.ArtifactCodeBundle, code); err != nil {
			return nil, err
		}
	}

	o.stageDone(run.ID, stage, map[string]any{
		"syntax_errors":   report.SyntaxErrors,
		"missing_imports": report.MissingImports,
		"smoke_run_ok":    report.SmokeRunOK,
		"patches":         len(report.Patches),
	})
	return code, nil
}

func (o *Orchestrator) stageTestGeneration(ctx context.Context, run *domain.GenerationRun, code domain.CodeBundle) (domain.CodeBundle, error) {
	stage := domain.StageTestGeneration
	o.stageStart(run.ID, stage)

	tests, err := o.gen.GenerateTests(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("test generation stage: %w", err)
	}

	if _, err := o.persistArtifact(run.ID, stage, 1, domain.ArtifactGeneratedTests, tests); err != nil {
		return nil, err
	}
	o.stageDone(run.ID, stage, map[string]any{"test_files": len(tests)})
	return tests, nil
}

func (o *Orchestrator) stageReviewLoop(ctx context.Context, run *domain.GenerationRun, code domain.CodeBundle) (domain.CodeBundle, domain.ReviewState, error) {
	stage := domain.StageReviewLoop
	o.stageStart(run.ID, stage)

	var persistErr error
	result, err := o.reviewer.Run(ctx, code, func(iteration int, state domain.ReviewState, b domain.CodeBundle) {
		if _, err := o.persistArtifact(run.ID, stage, iteration, domain.ArtifactReviewReport, state); err != nil && persistErr == nil {
			persistErr = err
		}
		o.emit(progress.Event{
			Type:    progress.EventLoopIteration,
			RunID:   run.ID,
			Stage:   stage,
			Attempt: iteration,
			Payload: map[string]any{
				"score":    state.Score,
				"approved": state.Approved,
				"issues":   len(state.Issues),
			},
		})
	})
	if err != nil {
		return nil, domain.ReviewState{}, fmt.Errorf("review loop: %w", err)
	}
	if persistErr != nil {
		return nil, domain.ReviewState{}, persistErr
	}

	o.emit(progress.Event{
		Type:    progress.EventLoopDone,
		RunID:   run.ID,
		Stage:   stage,
		Attempt: result.Iterations,
		Payload: map[string]any{"score": result.Final.Score, "approved": result.Approved},
	})

	if !result.Approved && o.cfg.Review.OnExhausted == config.ExhaustFail {
		return nil, domain.ReviewState{}, fmt.Errorf("%w after %d iterations (score %d)",
			ErrReviewRejected, result.Iterations, result.Final.Score)
	}

	o.stageDone(run.ID, stage, map[string]any{
		"iterations": result.Iterations,
		"score":      result.Final.Score,
		"approved":   result.Approved,
	})
	return result.Bundle, result.Final, nil
}

func (o *Orchestrator) stageSandboxLoop(ctx context.Context, run *domain.GenerationRun, code, tests domain.CodeBundle, entrypoint string) (*sandbox.Result, error) {
	stage := domain.StageSandboxLoop
	o.stageStart(run.ID, stage)

	var persistErr error
	result, err := o.sandbox.Run(ctx, run.ID, code, tests, entrypoint, func(attempt domain.SandboxAttempt, patches []domain.FilePatchRequest, app domain.CodeBundle) {
		if err := o.store.SaveSandboxAttempt(run.ID, &attempt); err != nil && persistErr == nil {
			persistErr = err
		}
		if _, err := o.persistArtifact(run.ID, stage, attempt.Number, domain.ArtifactSandboxAttempt, attempt); err != nil && persistErr == nil {
			persistErr = err
		}
		o.emit(progress.Event{
			Type:    progress.EventLoopIteration,
			RunID:   run.ID,
			Stage:   stage,
			Attempt: attempt.Number,
			Payload: map[string]any{
				"deployed":     attempt.Deployed,
				"health_ok":    attempt.HealthOK,
				"tests_passed": attempt.TestsPassed,
				"tests_failed": attempt.TestsFailed,
				"patches":      len(patches),
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox loop: %w", err)
	}
	if persistErr != nil {
		return nil, persistErr
	}

	o.emit(progress.Event{
		Type:    progress.EventLoopDone,
		RunID:   run.ID,
		Stage:   stage,
		Attempt: len(result.Attempts),
		Payload: map[string]any{"attempts": len(result.Attempts)},
	})
	o.stageDone(run.ID, stage, map[string]any{"attempts": len(result.Attempts)})
	return result, nil
}
