package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/bundle"
	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/pytrace"
)

// ErrExhausted means every sandbox attempt failed. The last attempt's
// diagnostics are preserved in the returned attempts.
var ErrExhausted = errors.New("sandbox retries exhausted")

// AttemptFunc observes one completed attempt and the patches derived from
// it; used for artifact persistence and progress events.
type AttemptFunc func(attempt domain.SandboxAttempt, patches []domain.FilePatchRequest, app domain.CodeBundle)

// Executor drives the bounded deploy-and-test loop
type Executor struct {
	provider Provider
	regen    bundle.FileRegenerator
	cfg      config.SandboxConfig
	logger   *zap.Logger
}

// NewExecutor creates a sandbox executor
func NewExecutor(provider Provider, regen bundle.FileRegenerator, cfg config.SandboxConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{provider: provider, regen: regen, cfg: cfg, logger: logger.Named("sandbox")}
}

// Result is the sandbox loop outcome
type Result struct {
	App      domain.CodeBundle
	Tests    domain.CodeBundle
	Attempts []domain.SandboxAttempt
}

// Run deploys the bundle into fresh workspaces until an attempt succeeds
// or the retry budget is exhausted. Each attempt's workspace is built
// from scratch; nothing from attempt N survives into attempt N+1 unless
// it was regenerated into the bundle.
func (e *Executor) Run(ctx context.Context, runID string, app, tests domain.CodeBundle, entrypoint string, onAttempt AttemptFunc) (*Result, error) {
	result := &Result{App: app, Tests: tests}

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		rec, patches, err := e.runAttempt(ctx, runID, attempt, result.App, result.Tests, entrypoint)
		if err != nil {
			// Infrastructure faults are reported verbatim, not retried
			return nil, err
		}
		result.Attempts = append(result.Attempts, *rec)
		if onAttempt != nil {
			onAttempt(*rec, patches, result.App)
		}

		if rec.Succeeded() {
			e.logger.Info("sandbox attempt succeeded",
				zap.Int("attempt", attempt),
				zap.Int("tests_passed", rec.TestsPassed))
			return result, nil
		}

		e.logger.Info("sandbox attempt failed",
			zap.Int("attempt", attempt),
			zap.Bool("health_ok", rec.HealthOK),
			zap.Int("tests_failed", rec.TestsFailed),
			zap.Int("patches", len(patches)))

		if attempt == e.cfg.MaxRetries {
			break
		}
		if len(patches) > 0 {
			newApp, newTests, err := e.applyPatches(ctx, result.App, result.Tests, patches)
			if err != nil {
				return nil, fmt.Errorf("sandbox attempt %d: %w", attempt, err)
			}
			result.App, result.Tests = newApp, newTests
		}
	}

	return result, fmt.Errorf("%w after %d attempts", ErrExhausted, e.cfg.MaxRetries)
}

// runAttempt builds one fresh workspace, waits for the launcher to finish
// and turns its logs into an attempt record plus patch requests.
func (e *Executor) runAttempt(ctx context.Context, runID string, attempt int, app, tests domain.CodeBundle, entrypoint string) (*domain.SandboxAttempt, []domain.FilePatchRequest, error) {
	ws, err := e.provider.Create(runID, attempt)
	if err != nil {
		return nil, nil, fmt.Errorf("creating sandbox workspace: %w", err)
	}
	defer ws.Destroy()

	healthPolls := int(e.cfg.HealthTimeout.Seconds() / 2)
	if healthPolls < 1 {
		healthPolls = 1
	}
	files := renderWorkspace(app, tests, entrypoint, e.cfg.ServicePort, healthPolls)
	if err := ws.Write(files); err != nil {
		return nil, nil, fmt.Errorf("writing sandbox workspace: %w", err)
	}
	e.logger.Debug("workspace written", zap.String("root", ws.Root()), zap.Int("files", len(files)))

	rec := &domain.SandboxAttempt{Number: attempt, Deployed: true}

	// Budget covers dependency install plus the launcher's own health polling
	pollCtx, cancel := context.WithTimeout(ctx, e.cfg.HealthTimeout+5*time.Minute)
	defer cancel()
	if err := ws.Poll(pollCtx); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		// Launcher never finished: treat like a crashed service
		rec.RawOutput = bestEffortOutput(ws)
		patches := e.diagnose(rec.RawOutput, app, tests, entrypoint, "sandbox launcher timed out")
		return rec, patches, nil
	}

	resultData, err := ws.Read(ResultLog)
	if err != nil {
		return nil, nil, fmt.Errorf("reading sandbox result log: %w", err)
	}
	outputData, _ := ws.Read(OutputLog)

	parsed := parseResultLog(resultData)
	parseTestCounts(string(outputData), &parsed)

	rec.HealthOK = parsed.HealthOK
	rec.TestsPassed = parsed.Passed
	rec.TestsFailed = parsed.Failed + parsed.Errors
	rec.TestsTotal = parsed.Passed + parsed.Failed + parsed.Errors
	rec.RawOutput = string(outputData)

	// A nonzero pytest exit still fails the attempt even when the summary
	// counts could not be parsed out of the output.
	if parsed.RanTests && !parsed.ExitOK && rec.TestsFailed == 0 {
		rec.TestsFailed = 1
		rec.TestsTotal++
	}

	if rec.Succeeded() {
		return rec, nil, nil
	}

	reason := "tests failed"
	if !parsed.HealthOK {
		reason = "service did not become healthy"
	}
	patches := e.diagnose(rec.RawOutput, app, tests, entrypoint, reason)
	return rec, patches, nil
}

// diagnose scans raw output for stack-trace patterns and builds patch
// requests against the implicated files. A health failure with no
// implicated file gets a best-effort patch against the entrypoint.
func (e *Executor) diagnose(output string, app, tests domain.CodeBundle, entrypoint, reason string) []domain.FilePatchRequest {
	allPaths := append(app.Paths(), tests.Paths()...)

	if diag := pytrace.Parse(output); diag != nil {
		path, line := diag.Implicate(allPaths)
		if path == "" {
			path = entrypoint
		}
		fullReason := diag.Summary()
		if line > 0 {
			fullReason = fmt.Sprintf("%s at %s line %d", diag.Summary(), path, line)
		}
		return []domain.FilePatchRequest{{
			Path:         path,
			Reason:       fullReason,
			Instructions: fmt.Sprintf("The sandbox run failed (%s). Fix the error: %s", reason, diag.Summary()),
		}}
	}

	return []domain.FilePatchRequest{{
		Path:         entrypoint,
		Reason:       reason,
		Instructions: "The service failed in the sandbox without a parseable traceback. Review the entrypoint for startup errors.",
	}}
}

// applyPatches routes each patch to the bundle that owns the target file
func (e *Executor) applyPatches(ctx context.Context, app, tests domain.CodeBundle, patches []domain.FilePatchRequest) (domain.CodeBundle, domain.CodeBundle, error) {
	var appReqs, testReqs []domain.FilePatchRequest
	for _, p := range patches {
		if _, ok := tests[p.Path]; ok {
			testReqs = append(testReqs, p)
		} else {
			appReqs = append(appReqs, p)
		}
	}

	newApp, err := bundle.ApplyPatches(ctx, app, appReqs, e.regen)
	if err != nil {
		return nil, nil, err
	}
	newTests, err := bundle.ApplyPatches(ctx, tests, testReqs, e.regen)
	if err != nil {
		return nil, nil, err
	}
	return newApp, newTests, nil
}

func bestEffortOutput(ws Workspace) string {
	if data, err := ws.Read(OutputLog); err == nil {
		return string(data)
	}
	return ""
}
