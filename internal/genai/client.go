// Package genai provides the structured-generation capability: prompt in,
// schema-validated object out, with bounded internal retries before a
// validation failure is surfaced as fatal.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/forgeworks/appforge/internal/prompts"
)

// ErrValidation means the backend could not produce a schema-conformant
// result within the retry budget. Callers treat it as fatal for the run.
var ErrValidation = errors.New("generation result failed schema validation")

// Backend is a raw text-completion capability
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client turns a raw backend into a structured generator
type Client struct {
	backend  Backend
	validate *validator.Validate
	prompts  *prompts.Loader
	retries  int
	logger   *zap.Logger
}

// NewClient creates a structured-generation client. retries is the number
// of internal re-asks after a malformed response (minimum 1 attempt total).
func NewClient(backend Backend, retries int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		backend:  backend,
		validate: validator.New(),
		prompts:  prompts.Default(),
		retries:  retries,
		logger:   logger.Named("genai"),
	}
}

// generateJSON asks the backend for JSON conforming to out's schema,
// retrying with the decode/validation error appended to the prompt.
func (c *Client) generateJSON(ctx context.Context, system, user string, out any) error {
	prompt := user
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		raw, err := c.backend.Complete(ctx, system, prompt)
		if err != nil {
			// Infrastructure faults are never retried as schema faults
			return fmt.Errorf("generation call: %w", err)
		}

		text := StripFences(raw)
		if err := json.Unmarshal([]byte(text), out); err != nil {
			lastErr = fmt.Errorf("parse response as JSON: %w", err)
		} else if err := c.validateResult(out); err != nil {
			lastErr = fmt.Errorf("response failed validation: %w", err)
		} else {
			return nil
		}

		c.logger.Warn("malformed generation result, re-asking",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
		prompt = fmt.Sprintf("%s\n\nYour previous response was invalid: %v\nReturn corrected JSON only.", user, lastErr)
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrValidation, c.retries+1, lastErr)
}

// validateResult applies struct tag validation where it is defined.
// Non-struct targets (file maps) only need to have decoded.
func (c *Client) validateResult(out any) error {
	v := reflect.ValueOf(out)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return c.validate.Struct(out)
}

// generateText asks the backend for raw source text (no JSON wrapper)
func (c *Client) generateText(ctx context.Context, system, user string) (string, error) {
	raw, err := c.backend.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("generation call: %w", err)
	}
	text := StripFences(raw)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: backend returned empty content", ErrValidation)
	}
	return text, nil
}

// StripFences removes a surrounding markdown code fence, if present
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
