package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/domain"
)

func testConfig() config.ReviewConfig {
	return config.ReviewConfig{
		MaxIterations:  5,
		TrustThreshold: 7,
		OnExhausted:    config.ExhaustContinue,
	}
}

// scriptedReviewer returns one response per iteration, in order; the last
// response repeats if the loop outlives the script.
type scriptedReviewer struct {
	responses []*domain.ReviewResponse
	err       error
	calls     int
	scores    []int // prevScore observed per call
}

func (r *scriptedReviewer) Review(ctx context.Context, b domain.CodeBundle, prevScore int) (*domain.ReviewResponse, error) {
	r.calls++
	r.scores = append(r.scores, prevScore)
	if r.err != nil {
		return nil, r.err
	}
	idx := r.calls - 1
	if idx >= len(r.responses) {
		idx = len(r.responses) - 1
	}
	return r.responses[idx], nil
}

type echoRegen struct{ calls int }

func (e *echoRegen) RegenerateFile(ctx context.Context, b domain.CodeBundle, req domain.FilePatchRequest) (string, error) {
	e.calls++
	return "fixed " + req.Path, nil
}

func testBundle() domain.CodeBundle {
	return domain.CodeBundle{"app/main.py": "original main", "app/auth.py": "original auth"}
}

func TestRunApprovesFirstIteration(t *testing.T) {
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{SecurityScore: 9, Approved: true},
	}}
	ctrl := NewController(reviewer, &echoRegen{}, testConfig(), nil)

	result, err := ctrl.Run(context.Background(), testBundle(), nil)
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 9, result.Final.Score)
}

func TestRunApprovalBelowThresholdKeepsLooping(t *testing.T) {
	// Approved but under the trust threshold must not terminate the loop.
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{SecurityScore: 5, Approved: true},
		{SecurityScore: 8, Approved: true},
	}}
	ctrl := NewController(reviewer, &echoRegen{}, testConfig(), nil)

	result, err := ctrl.Run(context.Background(), testBundle(), nil)
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, 2, result.Iterations)
}

func TestRunExhaustsAfterMaxIterations(t *testing.T) {
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{SecurityScore: 4, Approved: false},
	}}
	ctrl := NewController(reviewer, &echoRegen{}, testConfig(), nil)

	var observed int
	result, err := ctrl.Run(context.Background(), testBundle(), func(iteration int, state domain.ReviewState, b domain.CodeBundle) {
		observed++
	})
	require.NoError(t, err, "exhaustion is a policy decision, not an error")
	assert.False(t, result.Approved)
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, 5, reviewer.calls)
	assert.Equal(t, 5, observed)
	assert.NotNil(t, result.Bundle)
}

func TestRunScoreNeverDecreases(t *testing.T) {
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{SecurityScore: 6, Approved: false},
		{SecurityScore: 3, Approved: false}, // regression, must clamp to 6
		{SecurityScore: 8, Approved: true},
	}}
	ctrl := NewController(reviewer, &echoRegen{}, testConfig(), nil)

	var scores []int
	result, err := ctrl.Run(context.Background(), testBundle(), func(iteration int, state domain.ReviewState, b domain.CodeBundle) {
		scores = append(scores, state.Score)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{6, 6, 8}, scores)
	assert.True(t, result.Approved)
	// The reviewer sees the clamped score as its previous-score input.
	assert.Equal(t, []int{0, 6, 6}, reviewer.scores)
}

func TestRunRewritesSubstituteDirectly(t *testing.T) {
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{
			SecurityScore: 5,
			Approved:      false,
			Rewrites: map[string]string{
				"app/auth.py": "rewritten auth",
				"app/new.py":  "",
			},
		},
		{SecurityScore: 8, Approved: true},
	}}
	regen := &echoRegen{}
	ctrl := NewController(reviewer, regen, testConfig(), nil)

	result, err := ctrl.Run(context.Background(), testBundle(), nil)
	require.NoError(t, err)
	assert.Equal(t, "rewritten auth", result.Bundle["app/auth.py"])
	assert.Equal(t, "original main", result.Bundle["app/main.py"])
	// Empty rewrites are dropped, and rewrites bypass the regenerator.
	assert.NotContains(t, result.Bundle, "app/new.py")
	assert.Zero(t, regen.calls)
}

func TestRunPatchRequestsUseRegenerator(t *testing.T) {
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{
			SecurityScore: 5,
			Approved:      false,
			PatchRequests: []domain.FilePatchRequest{
				{Path: "app/auth.py", Reason: "weak hashing", Instructions: "use bcrypt"},
			},
		},
		{SecurityScore: 8, Approved: true},
	}}
	regen := &echoRegen{}
	ctrl := NewController(reviewer, regen, testConfig(), nil)

	result, err := ctrl.Run(context.Background(), testBundle(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, regen.calls)
	assert.Equal(t, "fixed app/auth.py", result.Bundle["app/auth.py"])
}

func TestRunSynthesizesPatchesFromIssues(t *testing.T) {
	reviewer := &scriptedReviewer{responses: []*domain.ReviewResponse{
		{
			SecurityScore: 5,
			Approved:      false,
			Issues: []domain.ReviewIssue{
				{File: "app/auth.py", Severity: "high", Detail: "tokens never expire"},
				{File: "app/ghost.py", Severity: "low", Detail: "not in the bundle"},
				{Severity: "info", Detail: "no file attributed"},
			},
		},
		{SecurityScore: 8, Approved: true},
	}}
	regen := &echoRegen{}
	ctrl := NewController(reviewer, regen, testConfig(), nil)

	result, err := ctrl.Run(context.Background(), testBundle(), nil)
	require.NoError(t, err)
	// Only the issue naming an existing bundle file becomes a patch.
	assert.Equal(t, 1, regen.calls)
	assert.Equal(t, "fixed app/auth.py", result.Bundle["app/auth.py"])
}

func TestRunReviewerErrorIsFatal(t *testing.T) {
	boom := errors.New("backend down")
	reviewer := &scriptedReviewer{err: boom}
	ctrl := NewController(reviewer, &echoRegen{}, testConfig(), nil)

	_, err := ctrl.Run(context.Background(), testBundle(), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, reviewer.calls)
}
