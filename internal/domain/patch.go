package domain

// FilePatchRequest asks for targeted regeneration of a single file.
// Requests are ephemeral: a corrective stage produces them and patch
// application consumes them immediately.
type FilePatchRequest struct {
	Path         string `json:"path"`
	Reason       string `json:"reason"`
	Instructions string `json:"instructions"`
}

// ReviewState is the recorded outcome of one reviewer iteration. Score is
// clamped so that it never decreases across iterations of one run.
type ReviewState struct {
	Score    int      `json:"score"`
	Approved bool     `json:"approved"`
	Issues   []string `json:"issues,omitempty"`
}

// SandboxAttempt records one deploy-and-test attempt. All attempts for a
// run are retained for diagnostics.
type SandboxAttempt struct {
	Number      int    `json:"number"`
	Deployed    bool   `json:"deployed"`
	HealthOK    bool   `json:"health_ok"`
	TestsPassed int    `json:"tests_passed"`
	TestsFailed int    `json:"tests_failed"`
	TestsTotal  int    `json:"tests_total"`
	RawOutput   string `json:"raw_output,omitempty"`
}

// Succeeded reports whether the attempt counts as sandbox success:
// workspace deployed, health check responsive, and no failing tests.
// Zero generated tests is not a failure.
func (a SandboxAttempt) Succeeded() bool {
	return a.Deployed && a.HealthOK && a.TestsFailed == 0
}
