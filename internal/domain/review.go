package domain

// ReviewIssue is one defect the reviewer found, tied to a file when the
// reviewer could attribute it.
type ReviewIssue struct {
	File     string `json:"file,omitempty"`
	Severity string `json:"severity,omitempty"`
	Detail   string `json:"detail" validate:"required"`
}

// ReviewResponse is the raw result of one review capability call. The
// reviewer supplies either whole-file rewrites or patch requests, never
// both; when it supplies neither, patch requests are synthesized from the
// issues.
type ReviewResponse struct {
	Issues        []ReviewIssue      `json:"issues" validate:"dive"`
	SecurityScore int                `json:"security_score" validate:"min=1,max=10"`
	Approved      bool               `json:"approved"`
	Rewrites      map[string]string  `json:"rewrites,omitempty"`
	PatchRequests []FilePatchRequest `json:"patch_requests,omitempty"`
}
