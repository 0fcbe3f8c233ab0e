// Package textgen talks to the natural-language generation service. Callers
// treat it as unreliable: every error is expected to be answered with a
// deterministic fallback, never surfaced to clients.
package textgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banking/grant-risk-service/internal/domain"
)

// Generator produces structured JSON answers to prompts
type Generator interface {
	// GenerateStructured sends prompt and decodes the JSON answer into out,
	// which must be a pointer.
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Failure kinds. All of them wrap domain.ErrGeneration.
var (
	ErrUnavailable = fmt.Errorf("%w: service unavailable", domain.ErrGeneration)
	ErrMalformed   = fmt.Errorf("%w: malformed response", domain.ErrGeneration)
	ErrDisabled    = fmt.Errorf("%w: not configured", domain.ErrGeneration)
)

// Disabled is used when no API key is configured; every call fails so
// callers take their fallbacks.
type Disabled struct{}

// GenerateStructured always returns ErrDisabled
func (Disabled) GenerateStructured(context.Context, string, any) error {
	return ErrDisabled
}

// decodeStructured strips markdown wrappers the model sometimes adds and
// unmarshals the remaining JSON object into out.
func decodeStructured(text string, out any) error {
	text = cleanMarkdownWrapper(text)
	if text == "" {
		return fmt.Errorf("%w: empty answer", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// cleanMarkdownWrapper removes ```json fences and any prose around the
// outermost JSON object.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
