// Package sysinfo is an MCP server exposing CPU, RAM and disk usage of the
// host as resources, tools and prompts.
package sysinfo

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	CPUResourceURI  = "info://cpu"
	RAMResourceURI  = "info://ram"
	DiskResourceURI = "info://disk"

	// FriendlyPromptName is the prompt the agent installs when the user
	// asks for a friendly chat.
	FriendlyPromptName = "friendly_assistant_prompt"
	GeneratePromptName = "generate_prompt"
)

const friendlyPrompt = "You are a friendly assistant that helps the user keep an eye on their machine. " +
	"Answer warmly and briefly, and quote the numbers you were given."

const generatePrompt = "What is the current CPU usage & disk usage & ram usage ?"

type reading func(ctx context.Context) (float64, error)

// NewServer builds the MCP server. It is not connected to a transport.
func NewServer(s Sampler, logger *zap.Logger) *mcpsdk.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "System info", Version: "v1.0.0"}, nil)

	addResource(server, logger, "cpu_usage", CPUResourceURI, "Get the CPU usage of the system.", "%.1f", s.CPUPercent)
	addResource(server, logger, "ram_usage", RAMResourceURI, "Get the RAM usage of the system.", "%.1f", s.RAMPercent)
	addResource(server, logger, "disk_usage", DiskResourceURI, "Get the disk usage of the system.", "%.1f", s.DiskPercent)

	addTool(server, logger, "total_usage_ram_in_gb", "Get the total RAM usage of the system in GB.", "%.2f", s.RAMUsedGB)
	addTool(server, logger, "disk_usage", "Get the disk usage of the system.", "%.1f", s.DiskPercent)

	addPrompt(server, GeneratePromptName, "Generate a prompt for the user.", "user", generatePrompt)
	addPrompt(server, FriendlyPromptName, "System instruction for a friendly conversation.", "assistant", friendlyPrompt)

	return server
}

func addResource(server *mcpsdk.Server, logger *zap.Logger, name, uri, description, format string, read reading) {
	server.AddResource(&mcpsdk.Resource{
		Name:        name,
		URI:         uri,
		Description: description,
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		v, err := read(ctx)
		if err != nil {
			logger.Warn("failed to sample resource", zap.String("uri", uri), zap.Error(err))
			return nil, fmt.Errorf("sampling %s: %w", uri, err)
		}
		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{{
				URI:      uri,
				MIMEType: "text/plain",
				Text:     fmt.Sprintf(format, v),
			}},
		}, nil
	})
}

func addTool(server *mcpsdk.Server, logger *zap.Logger, name, description, format string, read reading) {
	server.AddTool(&mcpsdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		v, err := read(ctx)
		if err != nil {
			logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		logger.Debug("tool called", zap.String("tool", name), zap.Float64("value", v))
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf(format, v)}},
		}, nil
	})
}

func addPrompt(server *mcpsdk.Server, name, description string, role mcpsdk.Role, text string) {
	server.AddPrompt(&mcpsdk.Prompt{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, req *mcpsdk.GetPromptRequest) (*mcpsdk.GetPromptResult, error) {
		return &mcpsdk.GetPromptResult{
			Description: description,
			Messages: []*mcpsdk.PromptMessage{{
				Role:    role,
				Content: &mcpsdk.TextContent{Text: text},
			}},
		}, nil
	})
}
