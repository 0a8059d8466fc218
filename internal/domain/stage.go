package domain

// Stage represents one pipeline phase. Stages execute strictly in the
// order returned by StageOrder; each consumes the previous stage's artifact.
type Stage string

const (
	StageRequirements       Stage = "requirements"
	StageArchitecture       Stage = "architecture"
	StageImplementation     Stage = "implementation"
	StageDeterministicTests Stage = "deterministic_tests"
	StageTestGeneration     Stage = "test_generation"
	StageReviewLoop         Stage = "review_loop"
	StageSandboxLoop        Stage = "sandbox_loop"
	StageCompleted          Stage = "completed"
)

// StageOrder returns the pipeline stages in execution order
func StageOrder() []Stage {
	return []Stage{
		StageRequirements,
		StageArchitecture,
		StageImplementation,
		StageDeterministicTests,
		StageTestGeneration,
		StageReviewLoop,
		StageSandboxLoop,
		StageCompleted,
	}
}

// Next returns the stage following s, or StageCompleted if s is last
func (s Stage) Next() Stage {
	order := StageOrder()
	for i, st := range order {
		if st == s && i+1 < len(order) {
			return order[i+1]
		}
	}
	return StageCompleted
}
