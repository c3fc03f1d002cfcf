// Package mcp connects to a capability provider speaking the Model Context
// Protocol and exposes it as a tools.Provider.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m4xw311/retainer/errors"
	"github.com/m4xw311/retainer/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPClient manages the session with a single MCP server.
type MCPClient struct {
	Name   string
	addr   string
	conn   *mcpsdk.ClientSession
	caps   *mcpsdk.ServerCapabilities
	logger *zap.Logger
}

// NewMCPClient connects to the server described by addr and completes the
// initialize handshake. Any failure is ProviderUnavailable.
func NewMCPClient(ctx context.Context, name, addr string, logger *zap.Logger) (*MCPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport, err := transportBuilder(ctx, addr)
	if err != nil {
		return nil, errors.E(errors.ProviderUnavailable, errors.Wrapf(err, "failed to build transport for MCP server '%s'", name))
	}

	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "retainer", Version: "v1.0.0"}, nil)
	conn, err := impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errors.E(errors.ProviderUnavailable, errors.Wrapf(err, "failed to connect to MCP server '%s'", name))
	}

	client := &MCPClient{
		Name:   name,
		addr:   addr,
		conn:   conn,
		logger: logger.With(zap.String("server", name)),
	}
	if res := conn.InitializeResult(); res != nil {
		client.caps = res.Capabilities
		if res.ServerInfo != nil {
			client.logger.Info("connected to MCP server",
				zap.String("server_name", res.ServerInfo.Name),
				zap.String("server_version", res.ServerInfo.Version),
			)
		}
	}
	return client, nil
}

// Initialized reports whether the handshake completed and the session is open.
func (c *MCPClient) Initialized() bool {
	return c != nil && c.conn != nil
}

// ListTools returns every tool the server offers, following pagination.
func (c *MCPClient) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	if !c.Initialized() {
		return nil, errors.E(errors.ProviderUnavailable, nil)
	}
	if c.caps != nil && c.caps.Tools == nil {
		return nil, nil
	}
	var out []tools.Descriptor
	params := &mcpsdk.ListToolsParams{}
	for {
		res, err := c.conn.ListTools(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", c.Name)
		}
		for _, t := range res.Tools {
			out = append(out, toDescriptor(t))
		}
		if res.NextCursor == "" {
			break
		}
		params.Cursor = res.NextCursor
	}
	c.logger.Debug("listed tools", zap.Int("count", len(out)))
	return out, nil
}

// ListResources returns every resource the server offers, following
// pagination.
func (c *MCPClient) ListResources(ctx context.Context) ([]tools.ResourceRef, error) {
	if !c.Initialized() {
		return nil, errors.E(errors.ProviderUnavailable, nil)
	}
	if c.caps != nil && c.caps.Resources == nil {
		return nil, nil
	}
	var out []tools.ResourceRef
	params := &mcpsdk.ListResourcesParams{}
	for {
		res, err := c.conn.ListResources(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list resources from MCP server '%s'", c.Name)
		}
		for _, r := range res.Resources {
			if r == nil {
				continue
			}
			out = append(out, tools.ResourceRef{
				Name:        r.Name,
				URI:         r.URI,
				Description: r.Description,
				MIMEType:    r.MIMEType,
			})
		}
		if res.NextCursor == "" {
			break
		}
		params.Cursor = res.NextCursor
	}
	c.logger.Debug("listed resources", zap.Int("count", len(out)))
	return out, nil
}

// ListPrompts returns every prompt template the server offers, following
// pagination.
func (c *MCPClient) ListPrompts(ctx context.Context) ([]tools.PromptRef, error) {
	if !c.Initialized() {
		return nil, errors.E(errors.ProviderUnavailable, nil)
	}
	if c.caps != nil && c.caps.Prompts == nil {
		return nil, nil
	}
	var out []tools.PromptRef
	params := &mcpsdk.ListPromptsParams{}
	for {
		res, err := c.conn.ListPrompts(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list prompts from MCP server '%s'", c.Name)
		}
		for _, p := range res.Prompts {
			if p == nil {
				continue
			}
			ref := tools.PromptRef{Name: p.Name, Description: p.Description}
			for _, arg := range p.Arguments {
				ref.Arguments = append(ref.Arguments, arg.Name)
			}
			out = append(out, ref)
		}
		if res.NextCursor == "" {
			break
		}
		params.Cursor = res.NextCursor
	}
	c.logger.Debug("listed prompts", zap.Int("count", len(out)))
	return out, nil
}

// CallTool executes a tool and renders its content as text. A result the
// server flags as an error is returned as ToolExecutionFailed.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if !c.Initialized() {
		return "", errors.E(errors.ProviderUnavailable, nil)
	}
	result, err := c.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.E(errors.ToolExecutionFailed, errors.Wrapf(err, "failed to call tool '%s'", name))
	}
	text := renderContent(result.Content)
	if text == "" && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			text = string(data)
		}
	}
	if result.IsError {
		return "", errors.E(errors.ToolExecutionFailed, fmt.Errorf("tool '%s' reported an error: %s", name, text))
	}
	return text, nil
}

// ReadResource reads the current content of the resource at uri.
func (c *MCPClient) ReadResource(ctx context.Context, uri string) (tools.ResourceContent, error) {
	if !c.Initialized() {
		return tools.ResourceContent{}, errors.E(errors.ProviderUnavailable, nil)
	}
	res, err := c.conn.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
	if err != nil {
		return tools.ResourceContent{}, errors.Wrapf(err, "failed to read resource '%s'", uri)
	}
	return toResourceContent(res.Contents), nil
}

// GetPrompt fetches a prompt template and returns its text. Multi-message
// prompts are joined with blank lines.
func (c *MCPClient) GetPrompt(ctx context.Context, name string) (string, error) {
	if !c.Initialized() {
		return "", errors.E(errors.ProviderUnavailable, nil)
	}
	res, err := c.conn.GetPrompt(ctx, &mcpsdk.GetPromptParams{Name: name})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get prompt '%s'", name)
	}
	var parts []string
	for _, m := range res.Messages {
		if m == nil {
			continue
		}
		if text := renderContent([]mcpsdk.Content{m.Content}); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return res.Description, nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// Close ends the session.
func (c *MCPClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.logger.Info("closing MCP session")
	err := c.conn.Close()
	c.conn = nil
	return err
}

func toDescriptor(t *mcpsdk.Tool) tools.Descriptor {
	if t == nil {
		return tools.Descriptor{}
	}
	return tools.Descriptor{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: tools.NormalizeSchema(t.InputSchema),
	}
}

func toResourceContent(contents []*mcpsdk.ResourceContents) tools.ResourceContent {
	var texts []string
	out := tools.ResourceContent{}
	for _, rc := range contents {
		if rc == nil {
			continue
		}
		if out.MIMEType == "" {
			out.MIMEType = rc.MIMEType
		}
		switch {
		case rc.Text != "":
			texts = append(texts, rc.Text)
		case len(rc.Blob) > 0:
			out.Size += len(rc.Blob)
		}
	}
	switch {
	case len(texts) > 0:
		out.Kind = tools.ContentText
		out.Text = strings.Join(texts, "\n")
	case out.Size > 0:
		out.Kind = tools.ContentBlob
	default:
		out.Kind = tools.ContentEmpty
	}
	return out
}

func renderContent(content []mcpsdk.Content) string {
	var parts []string
	for _, item := range content {
		switch v := item.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
		case *mcpsdk.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", v.MIMEType, len(v.Data)))
		case *mcpsdk.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s, %d bytes]", v.MIMEType, len(v.Data)))
		case *mcpsdk.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource %s]", v.URI))
		case *mcpsdk.EmbeddedResource:
			if v.Resource != nil && v.Resource.Text != "" {
				parts = append(parts, v.Resource.Text)
			} else if v.Resource != nil {
				parts = append(parts, fmt.Sprintf("[resource %s]", v.Resource.URI))
			}
		}
	}
	return strings.Join(parts, "\n")
}
