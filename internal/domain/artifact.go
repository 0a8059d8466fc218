package domain

import "time"

// ArtifactKind is a closed set of artifact payload types. Every stage
// attempt produces exactly one record of one kind.
type ArtifactKind string

const (
	ArtifactRequirements        ArtifactKind = "requirements"
	ArtifactArchitecture        ArtifactKind = "architecture"
	ArtifactCodeBundle          ArtifactKind = "code_bundle"
	ArtifactDeterministicReport ArtifactKind = "deterministic_report"
	ArtifactGeneratedTests      ArtifactKind = "generated_tests"
	ArtifactReviewReport        ArtifactKind = "review_report"
	ArtifactSandboxAttempt      ArtifactKind = "sandbox_attempt"
)

// ArtifactRecord is one persisted stage-attempt output. Records are
// append-only; a new attempt appends a new record rather than overwriting.
// Large payloads live in the blob store and are referenced by BlobRef;
// small ones are stored inline.
type ArtifactRecord struct {
	ID        int64
	RunID     string
	Stage     Stage
	Attempt   int
	Kind      ArtifactKind
	Inline    []byte
	BlobRef   string
	CreatedAt time.Time
}

// Requirements is the structured output of the requirements stage
type Requirements struct {
	ProjectName string     `json:"project_name" validate:"required"`
	Description string     `json:"description"`
	Entities    []Entity   `json:"entities" validate:"required,min=1,dive"`
	Endpoints   []Endpoint `json:"endpoints" validate:"dive"`
	NeedsAuth   bool       `json:"needs_auth"`
}

// Entity is one persisted data type of the generated service
type Entity struct {
	Name   string   `json:"name" validate:"required"`
	Fields []string `json:"fields" validate:"required,min=1"`
}

// Endpoint is one HTTP operation of the generated service
type Endpoint struct {
	Method string `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path   string `json:"path" validate:"required"`
	Detail string `json:"detail"`
}

// Architecture is the file plan produced from requirements
type Architecture struct {
	Entrypoint string       `json:"entrypoint" validate:"required"`
	Files      []PlannedFile `json:"files" validate:"required,min=1,dive"`
}

// PlannedFile names one file to generate and what it is for
type PlannedFile struct {
	Path    string `json:"path" validate:"required"`
	Purpose string `json:"purpose" validate:"required"`
}

// DeterministicReport summarizes the single-pass static checks
type DeterministicReport struct {
	SyntaxErrors   int                `json:"syntax_errors"`
	MissingImports int                `json:"missing_imports"`
	SmokeRunOK     bool               `json:"smoke_run_ok"`
	Patches        []FilePatchRequest `json:"patches,omitempty"`
}
