package agent_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/m4xw311/retainer/session"
	"github.com/m4xw311/retainer/tools"
)

// reply produces one scripted model response.
type reply func(ctx context.Context, messages []session.Message) (*session.Message, error)

// scriptedClient answers Chat calls from a script and records what it saw.
type scriptedClient struct {
	mu      sync.Mutex
	script  []reply
	seen    [][]session.Message
	offered [][]tools.Tool
}

func (s *scriptedClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	s.mu.Lock()
	n := len(s.seen)
	s.seen = append(s.seen, messages)
	s.offered = append(s.offered, availableTools)
	s.mu.Unlock()

	if n >= len(s.script) {
		return nil, fmt.Errorf("no scripted reply for call %d", n+1)
	}
	return s.script[n](ctx, messages)
}

func (s *scriptedClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func answer(text string) reply {
	return func(context.Context, []session.Message) (*session.Message, error) {
		return &session.Message{Role: session.RoleAssistant, Content: text}, nil
	}
}

func requestTools(calls ...session.ToolCall) reply {
	return func(context.Context, []session.Message) (*session.Message, error) {
		return &session.Message{Role: session.RoleAssistant, ToolCalls: calls}, nil
	}
}

func fail(err error) reply {
	return func(context.Context, []session.Message) (*session.Message, error) {
		return nil, err
	}
}

type invocation struct {
	name string
	args map[string]any
}

// fakeProvider is an in-memory capability provider.
type fakeProvider struct {
	descriptors []tools.Descriptor
	resources   []tools.ResourceRef
	contents    map[string]string
	prompts     map[string]string
	results     map[string]string
	failures    map[string]error
	block       map[string]bool

	invocations []invocation
	reads       int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		descriptors: []tools.Descriptor{
			{Name: "disk_usage", Description: "Disk usage percent"},
			{Name: "total_usage_ram_in_gb", Description: "RAM used in GB"},
			{Name: "slow_tool", Description: "Never finishes"},
		},
		resources: []tools.ResourceRef{
			{Name: "cpu", URI: "info://cpu"},
			{Name: "ram_usage", URI: "info://ram"},
		},
		contents: map[string]string{"info://cpu": "42", "info://ram": "63.5"},
		prompts:  map[string]string{"friendly_assistant_prompt": "You are a friendly assistant."},
		results:  map[string]string{"disk_usage": "61.2", "total_usage_ram_in_gb": "7.42"},
		failures: map[string]error{},
		block:    map[string]bool{"slow_tool": true},
	}
}

func (p *fakeProvider) Initialized() bool { return true }

func (p *fakeProvider) ListTools(context.Context) ([]tools.Descriptor, error) {
	return p.descriptors, nil
}

func (p *fakeProvider) ListResources(context.Context) ([]tools.ResourceRef, error) {
	return p.resources, nil
}

func (p *fakeProvider) ListPrompts(context.Context) ([]tools.PromptRef, error) {
	var refs []tools.PromptRef
	for name := range p.prompts {
		refs = append(refs, tools.PromptRef{Name: name})
	}
	return refs, nil
}

func (p *fakeProvider) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	p.invocations = append(p.invocations, invocation{name: name, args: args})
	if p.block[name] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := p.failures[name]; err != nil {
		return "", err
	}
	return p.results[name], nil
}

func (p *fakeProvider) ReadResource(ctx context.Context, uri string) (tools.ResourceContent, error) {
	p.reads++
	body, ok := p.contents[uri]
	if !ok {
		return tools.ResourceContent{}, fmt.Errorf("unknown resource %s", uri)
	}
	return tools.ResourceContent{Kind: tools.ContentText, Text: body}, nil
}

func (p *fakeProvider) GetPrompt(ctx context.Context, name string) (string, error) {
	body, ok := p.prompts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %s", name)
	}
	return body, nil
}
