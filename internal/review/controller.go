// Package review implements the bounded quality/security review loop with
// a monotonic trust score.
package review

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/bundle"
	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/domain"
)

// Capability is the review collaborator: bundle plus previous score in,
// raw review response out.
type Capability interface {
	Review(ctx context.Context, b domain.CodeBundle, prevScore int) (*domain.ReviewResponse, error)
}

// IterationFunc observes one completed loop iteration; used for artifact
// persistence and progress events.
type IterationFunc func(iteration int, state domain.ReviewState, b domain.CodeBundle)

// Controller runs the review loop
type Controller struct {
	capability Capability
	regen      bundle.FileRegenerator
	cfg        config.ReviewConfig
	logger     *zap.Logger
}

// NewController creates a review loop controller
func NewController(capability Capability, regen bundle.FileRegenerator, cfg config.ReviewConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		capability: capability,
		regen:      regen,
		cfg:        cfg,
		logger:     logger.Named("review"),
	}
}

// Result is the loop outcome
type Result struct {
	Bundle     domain.CodeBundle
	Final      domain.ReviewState
	Iterations int
	Approved   bool
}

// Run iterates review-and-correct until the trust threshold is met or the
// iteration budget is exhausted. The recorded score never decreases: a
// reported score below the previous iteration's is clamped upward.
// Exhaustion is not an error here; the caller applies the configured
// exhaustion policy.
func (c *Controller) Run(ctx context.Context, b domain.CodeBundle, onIteration IterationFunc) (*Result, error) {
	current := b
	prevScore := 0

	for iteration := 1; iteration <= c.cfg.MaxIterations; iteration++ {
		resp, err := c.capability.Review(ctx, current, prevScore)
		if err != nil {
			return nil, fmt.Errorf("review iteration %d: %w", iteration, err)
		}

		score := resp.SecurityScore
		if score < prevScore {
			c.logger.Info("clamping regressed review score",
				zap.Int("reported", score), zap.Int("previous", prevScore))
			score = prevScore
		}
		prevScore = score

		state := domain.ReviewState{
			Score:    score,
			Approved: resp.Approved,
			Issues:   issueSummaries(resp.Issues),
		}

		if resp.Approved && score >= c.cfg.TrustThreshold {
			if onIteration != nil {
				onIteration(iteration, state, current)
			}
			c.logger.Info("review approved", zap.Int("iteration", iteration), zap.Int("score", score))
			return &Result{Bundle: current, Final: state, Iterations: iteration, Approved: true}, nil
		}

		next, err := c.correct(ctx, current, resp)
		if err != nil {
			return nil, fmt.Errorf("review iteration %d: %w", iteration, err)
		}
		current = next

		if onIteration != nil {
			onIteration(iteration, state, current)
		}
		c.logger.Info("review iteration complete",
			zap.Int("iteration", iteration),
			zap.Int("score", score),
			zap.Int("issues", len(resp.Issues)))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return &Result{
		Bundle:     current,
		Final:      domain.ReviewState{Score: prevScore, Approved: false},
		Iterations: c.cfg.MaxIterations,
		Approved:   false,
	}, nil
}

// correct applies the reviewer's corrections: full rewrites substitute
// directly, otherwise patch requests (synthesized from issues when the
// reviewer supplied none) regenerate only the implicated files.
func (c *Controller) correct(ctx context.Context, current domain.CodeBundle, resp *domain.ReviewResponse) (domain.CodeBundle, error) {
	if len(resp.Rewrites) > 0 {
		next := current.Clone()
		for path, content := range resp.Rewrites {
			if content == "" {
				continue
			}
			next[path] = content
		}
		return next, nil
	}

	reqs := resp.PatchRequests
	if len(reqs) == 0 {
		reqs = synthesizePatches(resp.Issues, current)
	}
	if len(reqs) == 0 {
		return current, nil
	}
	return bundle.ApplyPatches(ctx, current, reqs, c.regen)
}

// synthesizePatches turns file-attributed issues into patch requests
func synthesizePatches(issues []domain.ReviewIssue, b domain.CodeBundle) []domain.FilePatchRequest {
	var reqs []domain.FilePatchRequest
	for _, issue := range issues {
		if issue.File == "" {
			continue
		}
		if _, ok := b[issue.File]; !ok {
			continue
		}
		reqs = append(reqs, domain.FilePatchRequest{
			Path:         issue.File,
			Reason:       fmt.Sprintf("review issue (%s)", issue.Severity),
			Instructions: issue.Detail,
		})
	}
	return reqs
}

func issueSummaries(issues []domain.ReviewIssue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.File != "" {
			out = append(out, issue.File+": "+issue.Detail)
		} else {
			out = append(out, issue.Detail)
		}
	}
	return out
}
