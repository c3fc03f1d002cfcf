package llm

import (
	"context"

	"github.com/m4xw311/retainer/config"
	"github.com/m4xw311/retainer/errors"
)

// NewFromConfig builds the client named by cfg.LLMClient.
func NewFromConfig(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	opts := ClientOptions{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}
	switch cfg.LLMClient {
	case "openai":
		return NewOpenAILLMClient(ctx, cfg.Model, opts)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, cfg.Model, opts)
	case "bedrock":
		return NewBedrockLLMClient(ctx, cfg.Model, opts)
	case "gemini":
		return NewGeminiLLMClient(ctx, cfg.Model, opts)
	case "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.New("unsupported llm client %q", cfg.LLMClient)
	}
}
