package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines the interface for any action the model can request.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is the JSON schema of the arguments, already normalized
	// to an object schema.
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Descriptor describes a tool as announced by the provider.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ResourceRef names a resource without its content. Content is read on
// demand because resources may be live values.
type ResourceRef struct {
	Name        string
	URI         string
	Description string
	MIMEType    string
}

// ContentKind tags the payload carried by a ResourceContent.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentText
	ContentBlob
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentBlob:
		return "blob"
	default:
		return "empty"
	}
}

// ResourceContent is the result of reading one resource.
type ResourceContent struct {
	Kind     ContentKind
	Text     string
	MIMEType string
	Size     int
}

// Body returns the text to inject for a resource: its text content, or the
// resource description when the content is not text.
func (c ResourceContent) Body(ref ResourceRef) string {
	if c.Kind == ContentText {
		return c.Text
	}
	return ref.Description
}

type PromptRef struct {
	Name        string
	Description string
	Arguments   []string
}

// Provider is a capability provider session: an MCP server in production.
type Provider interface {
	// Initialized reports whether the handshake completed.
	Initialized() bool
	ListTools(ctx context.Context) ([]Descriptor, error)
	ListResources(ctx context.Context) ([]ResourceRef, error)
	ListPrompts(ctx context.Context) ([]PromptRef, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	ReadResource(ctx context.Context, uri string) (ResourceContent, error)
	GetPrompt(ctx context.Context, name string) (string, error)
}

// providerTool executes a Descriptor through the provider that announced it.
type providerTool struct {
	desc     Descriptor
	provider Provider
}

func (t *providerTool) Name() string                { return t.desc.Name }
func (t *providerTool) Description() string         { return t.desc.Description }
func (t *providerTool) InputSchema() map[string]any { return t.desc.InputSchema }

func (t *providerTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	return t.provider.CallTool(ctx, t.desc.Name, args)
}

// NewProviderTool wraps desc so that Execute calls the provider. The schema
// is normalized on the way in.
func NewProviderTool(desc Descriptor, p Provider) Tool {
	desc.InputSchema = NormalizeSchema(desc.InputSchema)
	return &providerTool{desc: desc, provider: p}
}

// NormalizeSchema converts any schema value a provider may return into a
// JSON object schema. Missing, empty or unusable schemas become a schema
// that accepts no arguments. The input is never modified.
func NormalizeSchema(schema any) map[string]any {
	var m map[string]any
	switch s := schema.(type) {
	case nil:
	case map[string]any:
		m = cloneMap(s)
	case json.RawMessage:
		m = decodeSchema(s)
	case []byte:
		m = decodeSchema(s)
	case string:
		m = decodeSchema([]byte(s))
	default:
		if data, err := json.Marshal(s); err == nil {
			m = decodeSchema(data)
		}
	}

	if len(m) == 0 {
		return emptySchema()
	}
	typ, hasType := m["type"]
	if !hasType {
		m["type"] = "object"
	} else if typ != "object" {
		return emptySchema()
	}
	if _, ok := m["properties"].(map[string]any); !ok {
		m["properties"] = map[string]any{}
	}
	return m
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func decodeSchema(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// SchemaProperties splits a normalized schema into its properties and
// required names, the pieces most completion APIs ask for separately.
func SchemaProperties(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = append(required, r...)
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}

// ParseArguments decodes the JSON arguments produced by a model. An empty
// string means no arguments.
func ParseArguments(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}
