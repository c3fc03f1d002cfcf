package llm

import (
	"context"
	"fmt"

	"github.com/m4xw311/retainer/session"
	"github.com/m4xw311/retainer/tools"
)

// LLMClient is the interface for interacting with a Large Language Model.
// Chat returns one assistant message carrying text, tool calls, or both.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// ClientOptions carries the endpoint settings from configuration. Empty
// fields fall back to the provider's environment variables.
type ClientOptions struct {
	BaseURL string
	APIKey  string
}

// MockLLMClient answers without a model, for running the agent offline.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	var lastUserMessage string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == session.RoleUser {
			lastUserMessage = messages[i].Content
			break
		}
	}
	return &session.Message{
		Role:    session.RoleAssistant,
		Content: fmt.Sprintf("I am a mock LLM with %d tools. You said: '%s'.", len(availableTools), lastUserMessage),
	}, nil
}
