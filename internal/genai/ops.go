package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/prompts"
)

// GenerateRequirements extracts structured requirements from a prompt
func (c *Client) GenerateRequirements(ctx context.Context, prompt string) (*domain.Requirements, error) {
	system, err := c.prompts.Load(prompts.Requirements)
	if err != nil {
		return nil, err
	}
	var reqs domain.Requirements
	user := "Product description:\n\n" + prompt
	if err := c.generateJSON(ctx, system, user, &reqs); err != nil {
		return nil, err
	}
	return &reqs, nil
}

// GenerateArchitecture plans the service's file layout
func (c *Client) GenerateArchitecture(ctx context.Context, reqs *domain.Requirements) (*domain.Architecture, error) {
	system, err := c.prompts.Load(prompts.Architecture)
	if err != nil {
		return nil, err
	}
	reqsJSON, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	var arch domain.Architecture
	user := "Requirements:\n\n" + string(reqsJSON)
	if err := c.generateJSON(ctx, system, user, &arch); err != nil {
		return nil, err
	}
	return &arch, nil
}

// GenerateFile writes one planned file, with already-generated files as context
func (c *Client) GenerateFile(ctx context.Context, arch *domain.Architecture, file domain.PlannedFile, done domain.CodeBundle) (string, error) {
	system, err := c.prompts.Load(prompts.File)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "File plan:\n")
	for _, f := range arch.Files {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Path, f.Purpose)
	}
	fmt.Fprintf(&sb, "\nTarget file: %s\nPurpose: %s\n", file.Path, file.Purpose)
	if len(done) > 0 {
		sb.WriteString("\nAlready written:\n")
		writeBundleContext(&sb, done)
	}
	return c.generateText(ctx, system, sb.String())
}

// GenerateTests produces pytest files for the bundle
func (c *Client) GenerateTests(ctx context.Context, b domain.CodeBundle) (domain.CodeBundle, error) {
	system, err := c.prompts.Load(prompts.Tests)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString("Service source:\n")
	writeBundleContext(&sb, b)

	var files map[string]string
	if err := c.generateJSON(ctx, system, sb.String(), &files); err != nil {
		return nil, err
	}
	tests := make(domain.CodeBundle, len(files))
	for path, content := range files {
		tests[path] = content
	}
	return tests, nil
}

// Review runs the quality/security review capability over the bundle
func (c *Client) Review(ctx context.Context, b domain.CodeBundle, prevScore int) (*domain.ReviewResponse, error) {
	system, err := c.prompts.Load(prompts.Review)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	if prevScore > 0 {
		fmt.Fprintf(&sb, "Previous iteration's trust score: %d. Improve on it.\n\n", prevScore)
	}
	sb.WriteString("Service source:\n")
	writeBundleContext(&sb, b)

	var resp domain.ReviewResponse
	if err := c.generateJSON(ctx, system, sb.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegenerateFile implements bundle.FileRegenerator: rewrite one file with
// the rest of the bundle as immutable context.
func (c *Client) RegenerateFile(ctx context.Context, b domain.CodeBundle, req domain.FilePatchRequest) (string, error) {
	system, err := c.prompts.Load(prompts.Patch)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Target file: %s\nDefect: %s\nFix instructions: %s\n\n", req.Path, req.Reason, req.Instructions)
	fmt.Fprintf(&sb, "Current content of %s:\n%s\n\nContext files:\n", req.Path, b[req.Path])
	for _, path := range b.Paths() {
		if path == req.Path {
			continue
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", path, b[path])
	}
	return c.generateText(ctx, system, sb.String())
}

func writeBundleContext(sb *strings.Builder, b domain.CodeBundle) {
	for _, path := range b.Paths() {
		fmt.Fprintf(sb, "--- %s ---\n%s\n", path, b[path])
	}
}
