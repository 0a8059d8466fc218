package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/blobstore"
	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/genai"
	"github.com/forgeworks/appforge/internal/pipeline"
	"github.com/forgeworks/appforge/internal/progress"
	"github.com/forgeworks/appforge/internal/review"
	"github.com/forgeworks/appforge/internal/runstore"
	"github.com/forgeworks/appforge/internal/sandbox"
	"github.com/forgeworks/appforge/internal/statictest"
)

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func buildLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = nil
	return cfg.Build()
}

func buildBackend(cfg *config.Config) (genai.Backend, error) {
	switch cfg.Generation.Backend {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return genai.NewAnthropicBackend(key, cfg.Generation.Model, cfg.Generation.MaxTokens), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return genai.NewOpenAIBackend(key, cfg.Generation.Model, cfg.Generation.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Generation.Backend)
	}
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	if err := os.MkdirAll(cfg.General.DataDir, 0755); err != nil {
		return nil, err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	return store, nil
}

// buildOrchestrator wires the full pipeline from config. The returned
// cleanup closes the stores and must run after the pipeline is done.
func buildOrchestrator(cfg *config.Config, sink progress.Sink, logger *zap.Logger) (*pipeline.Orchestrator, *runstore.Store, *blobstore.Store, func(), error) {
	if err := os.MkdirAll(cfg.General.WorkspaceDir, 0755); err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	blobs, err := blobstore.Open(filepath.Join(cfg.General.DataDir, "blobs"))
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		blobs.Close()
		store.Close()
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}
	client := genai.NewClient(backend, cfg.Generation.SchemaRetries, logger)

	statics, err := statictest.NewRunner("", logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}

	reviewer := review.NewController(client, client, cfg.Review, logger)

	provider := &sandbox.LocalProvider{
		BaseDir:      cfg.General.WorkspaceDir,
		PollInterval: cfg.Sandbox.PollInterval,
	}
	sb := sandbox.NewExecutor(provider, client, cfg.Sandbox, logger)

	orch := pipeline.New(client, reviewer, sb, statics, store, blobs, sink, cfg, logger)
	return orch, store, blobs, cleanup, nil
}
