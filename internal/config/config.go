// Package config loads pipeline configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Generation    GenerationConfig    `toml:"generation"`
	Review        ReviewConfig        `toml:"review"`
	Sandbox       SandboxConfig       `toml:"sandbox"`
	Web           WebConfig           `toml:"web"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// GeneralConfig holds storage locations
type GeneralConfig struct {
	DataDir       string        `toml:"data_dir"`
	DatabasePath  string        `toml:"database_path"`
	WorkspaceDir  string        `toml:"workspace_dir"`
	BlobRetention time.Duration `toml:"blob_retention"`
}

// GenerationConfig holds structured-generation settings
type GenerationConfig struct {
	Backend       string `toml:"backend"` // "anthropic" or "openai"
	Model         string `toml:"model"`
	MaxTokens     int    `toml:"max_tokens"`
	SchemaRetries int    `toml:"schema_retries"`
	ParallelFiles int    `toml:"parallel_files"`
}

// ExhaustionPolicy decides what happens when the reviewer loop runs out
// of iterations without approval.
type ExhaustionPolicy string

const (
	// ExhaustContinue proceeds with the best bundle achieved
	ExhaustContinue ExhaustionPolicy = "continue"
	// ExhaustFail fails the run outright
	ExhaustFail ExhaustionPolicy = "fail"
)

// ReviewConfig holds reviewer loop settings
type ReviewConfig struct {
	MaxIterations  int              `toml:"max_iterations"`
	TrustThreshold int              `toml:"trust_threshold"`
	OnExhausted    ExhaustionPolicy `toml:"on_exhausted"`
}

// SandboxConfig holds sandbox executor settings
type SandboxConfig struct {
	MaxRetries    int           `toml:"max_retries"`
	ServicePort   int           `toml:"service_port"`
	HealthTimeout time.Duration `toml:"health_timeout"`
	PollInterval  time.Duration `toml:"poll_interval"`
	WorkspaceTTL  time.Duration `toml:"workspace_ttl"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".appforge")
	return &Config{
		General: GeneralConfig{
			DataDir:       dataDir,
			DatabasePath:  filepath.Join(dataDir, "appforge.db"),
			WorkspaceDir:  filepath.Join(dataDir, "workspaces"),
			BlobRetention: 7 * 24 * time.Hour,
		},
		Generation: GenerationConfig{
			Backend:       "anthropic",
			Model:         "claude-sonnet-4-20250514",
			MaxTokens:     16000,
			SchemaRetries: 3,
			ParallelFiles: 4,
		},
		Review: ReviewConfig{
			MaxIterations:  5,
			TrustThreshold: 7,
			OnExhausted:    ExhaustContinue,
		},
		Sandbox: SandboxConfig{
			MaxRetries:    3,
			ServicePort:   8000,
			HealthTimeout: 60 * time.Second,
			PollInterval:  2 * time.Second,
			WorkspaceTTL:  24 * time.Hour,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.WorkspaceDir = ExpandPath(cfg.General.WorkspaceDir)

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that TOML parsing cannot
func (c *Config) Validate() error {
	switch c.Generation.Backend {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("generation.backend must be anthropic or openai, got %q", c.Generation.Backend)
	}
	switch c.Review.OnExhausted {
	case ExhaustContinue, ExhaustFail:
	default:
		return fmt.Errorf("review.on_exhausted must be continue or fail, got %q", c.Review.OnExhausted)
	}
	if c.Review.TrustThreshold < 1 || c.Review.TrustThreshold > 10 {
		return fmt.Errorf("review.trust_threshold must be in 1..10, got %d", c.Review.TrustThreshold)
	}
	if c.Review.MaxIterations < 1 {
		return fmt.Errorf("review.max_iterations must be positive")
	}
	if c.Sandbox.MaxRetries < 1 {
		return fmt.Errorf("sandbox.max_retries must be positive")
	}
	if c.General.BlobRetention < 0 {
		return fmt.Errorf("general.blob_retention must not be negative")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "appforge", "config.toml")
}
