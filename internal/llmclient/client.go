// Package llmclient defines the narrow LLM contract the pipeline stages
// depend on, plus the lenient text-parsing helpers the stages need to pull
// structured data out of free-form model output.
package llmclient

import (
	"context"
	"fmt"
)

// Client is the minimal surface every pipeline stage needs from a language
// model. OpenAIAdapter (openai.go) implements it over an OpenAI-compatible
// chat completions API.
type Client interface {
	Generate(ctx context.Context, prompt, model, systemPrompt string, temperature float64, maxTokens int) (string, error)
}

// ErrorKind classifies why a Client call failed.
type ErrorKind string

const (
	ErrorTransport ErrorKind = "transport"
	ErrorTimeout   ErrorKind = "timeout"
	ErrorQuota     ErrorKind = "quota"
)

// Error wraps an underlying transport error with a classification the
// orchestrator can switch on without string matching.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm client error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
