// Package pipeline drives one generation run through its ordered stages:
// requirements, architecture, implementation, deterministic tests, test
// generation, the review loop and the sandbox loop. The orchestrator owns
// the single mutable code bundle; every other component submits patch
// requests rather than writing to it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/progress"
	"github.com/forgeworks/appforge/internal/review"
	"github.com/forgeworks/appforge/internal/sandbox"
	"github.com/forgeworks/appforge/internal/statictest"
)

// inlineThreshold is the payload size above which artifacts move to the
// blob store instead of living inline in the run database.
const inlineThreshold = 64 * 1024

// Generator is the structured-generation collaborator the pipeline consumes
type Generator interface {
	GenerateRequirements(ctx context.Context, prompt string) (*domain.Requirements, error)
	GenerateArchitecture(ctx context.Context, reqs *domain.Requirements) (*domain.Architecture, error)
	GenerateFile(ctx context.Context, arch *domain.Architecture, file domain.PlannedFile, done domain.CodeBundle) (string, error)
	GenerateTests(ctx context.Context, b domain.CodeBundle) (domain.CodeBundle, error)
	RegenerateFile(ctx context.Context, b domain.CodeBundle, req domain.FilePatchRequest) (string, error)
}

// Store is the run persistence the pipeline consumes
type Store interface {
	CreateRun(run *domain.GenerationRun) error
	UpdateRunStatus(id string, status domain.RunStatus, projectName, errMsg string) error
	AppendArtifact(rec *domain.ArtifactRecord) error
	SaveSandboxAttempt(runID string, a *domain.SandboxAttempt) error
}

// BlobStore stores large artifact payloads by opaque reference
type BlobStore interface {
	Put(data []byte) (string, error)
	Get(ref string) ([]byte, error)
}

// Orchestrator composes the pipeline's collaborators for one or more runs.
// Concurrent runs are independent; each Execute call owns its own bundle.
type Orchestrator struct {
	gen      Generator
	reviewer *review.Controller
	sandbox  *sandbox.Executor
	statics  *statictest.Runner
	store    Store
	blobs    BlobStore
	sink     progress.Sink
	cfg      *config.Config
	logger   *zap.Logger
}

// New creates an Orchestrator
func New(gen Generator, reviewer *review.Controller, sb *sandbox.Executor, statics *statictest.Runner,
	store Store, blobs BlobStore, sink progress.Sink, cfg *config.Config, logger *zap.Logger) *Orchestrator {
	if sink == nil {
		sink = progress.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gen:      gen,
		reviewer: reviewer,
		sandbox:  sb,
		statics:  statics,
		store:    store,
		blobs:    blobs,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.Named("pipeline"),
	}
}

// Start creates and persists a new pending run without driving it
func (o *Orchestrator) Start(prompt string) (*domain.GenerationRun, error) {
	now := time.Now()
	run := &domain.GenerationRun{
		ID:        uuid.NewString(),
		Status:    domain.RunPending,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateRun(run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// Execute drives one run end to end. It returns the terminal run record;
// the error is non-nil exactly when the run failed.
func (o *Orchestrator) Execute(ctx context.Context, prompt string) (*domain.GenerationRun, error) {
	run, err := o.Start(prompt)
	if err != nil {
		return nil, err
	}
	return run, o.Drive(ctx, run)
}

// Drive runs a pending run to its terminal state
func (o *Orchestrator) Drive(ctx context.Context, run *domain.GenerationRun) error {
	run.Status = domain.RunRunning
	if err := o.store.UpdateRunStatus(run.ID, run.Status, "", ""); err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	o.logger.Info("run started", zap.String("run_id", run.ID))

	summary, err := o.drive(ctx, run)
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		if storeErr := o.store.UpdateRunStatus(run.ID, run.Status, run.ProjectName, run.Error); storeErr != nil {
			o.logger.Error("recording run failure", zap.Error(storeErr))
		}
		o.emit(progress.Event{
			Type:    progress.EventRunError,
			RunID:   run.ID,
			Payload: map[string]any{"reason": err.Error()},
		})
		o.logger.Error("run failed", zap.String("run_id", run.ID), zap.Error(err))
		return err
	}

	run.Status = domain.RunCompleted
	if err := o.store.UpdateRunStatus(run.ID, run.Status, run.ProjectName, ""); err != nil {
		o.logger.Error("recording run completion", zap.Error(err))
	}
	o.emit(progress.Event{
		Type:    progress.EventRunComplete,
		RunID:   run.ID,
		Payload: summary,
	})
	o.logger.Info("run completed", zap.String("run_id", run.ID))
	return nil
}

func (o *Orchestrator) emit(e progress.Event) {
	e.Time = time.Now()
	o.sink.Emit(e)
}

func (o *Orchestrator) stageStart(runID string, stage domain.Stage) {
	o.emit(progress.Event{Type: progress.EventStageStart, RunID: runID, Stage: stage})
}

func (o *Orchestrator) stageDone(runID string, stage domain.Stage, payload map[string]any) {
	o.emit(progress.Event{Type: progress.EventStageDone, RunID: runID, Stage: stage, Payload: payload})
}

// persistArtifact appends one stage-attempt record, moving large payloads
// to the blob store. The record is persisted before the pipeline advances.
func (o *Orchestrator) persistArtifact(runID string, stage domain.Stage, attempt int, kind domain.ArtifactKind, payload any) (*domain.ArtifactRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s artifact: %w", kind, err)
	}

	rec := &domain.ArtifactRecord{
		RunID:   runID,
		Stage:   stage,
		Attempt: attempt,
		Kind:    kind,
	}
	if len(data) > inlineThreshold && o.blobs != nil {
		ref, err := o.blobs.Put(data)
		if err != nil {
			return nil, fmt.Errorf("storing %s artifact: %w", kind, err)
		}
		rec.BlobRef = ref
	} else {
		rec.Inline = data
	}

	if err := o.store.AppendArtifact(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
