// Package domain holds the core types shared across the generation pipeline.
package domain

import "time"

// RunStatus represents the lifecycle state of a generation run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal returns true for states the orchestrator never leaves
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// GenerationRun represents one end-to-end generation of a service project
// from a natural-language prompt. Only the orchestrator mutates it.
type GenerationRun struct {
	ID          string
	Status      RunStatus
	Prompt      string
	ProjectName string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
