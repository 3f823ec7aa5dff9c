package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/llm"
	"github.com/researchflow/researchflow/llm/providers/openaicompat"
	"github.com/researchflow/researchflow/types"
)

// OpenAIConfig configures the OpenAI-compatible adapter. It intentionally
// carries only the fields the research pipeline's single-turn Generate call
// needs, not the full provider-config surface.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
	Timeout      time.Duration
}

// OpenAIAdapter narrows llm/providers/openaicompat's full Provider surface
// down to the single Generate call every pipeline stage depends on.
type OpenAIAdapter struct {
	provider *openaicompat.Provider
	model    string
}

// NewOpenAIAdapter builds an adapter around the OpenAI-compatible HTTP client.
func NewOpenAIAdapter(cfg OpenAIConfig, logger *zap.Logger) *OpenAIAdapter {
	provider := openaicompat.New(openaicompat.Config{
		ProviderName:  "openai",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "gpt-5.2",
		Timeout:       cfg.Timeout,
	}, logger)
	if cfg.Organization != "" {
		org := cfg.Organization
		provider.SetBuildHeaders(func(req *http.Request, apiKey string) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("OpenAI-Organization", org)
		})
	}
	return &OpenAIAdapter{provider: provider, model: cfg.Model}
}

// Generate implements Client by issuing a single-turn completion request.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt, model, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	messages := make([]types.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, types.NewSystemMessage(systemPrompt))
	}
	messages = append(messages, types.NewUserMessage(prompt))

	if model == "" {
		model = a.model
	}

	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: ErrorTransport, Err: errors.New("empty completion response")}
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyError maps a types.Error's code onto the narrow ErrorKind taxonomy
// the orchestrator switches on.
func classifyError(err error) error {
	var typedErr *types.Error
	if errors.As(err, &typedErr) {
		switch typedErr.Code {
		case types.ErrTimeout, types.ErrUpstreamTimeout:
			return &Error{Kind: ErrorTimeout, Err: err}
		case types.ErrQuotaExceeded, types.ErrRateLimit, types.ErrRateLimited:
			return &Error{Kind: ErrorQuota, Err: err}
		}
	}
	return &Error{Kind: ErrorTransport, Err: fmt.Errorf("openai completion: %w", err)}
}
