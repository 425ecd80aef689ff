package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/easeaico/careertrack-agent/internal/service"
)

// NewMCPServer creates an MCP server with every career memory tool registered.
func NewMCPServer(engine *service.Engine, workDir, version string) *mcp.Server {
	h := NewHandler(engine, workDir)

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "careertrack",
		Version: version,
	}, nil)
	for _, def := range toolDefs {
		def.mcp(srv, h)
	}
	return srv
}

// RunMCP serves the tools over stdio until ctx is cancelled.
func RunMCP(ctx context.Context, engine *service.Engine, workDir, version string) error {
	return NewMCPServer(engine, workDir, version).Run(ctx, &mcp.StdioTransport{})
}

func toMCP(res ToolResult) (*mcp.CallToolResult, any, error) {
	if !res.Success {
		msg := res.Error
		if res.Guidance != "" {
			msg += "\n" + res.Guidance
		}
		return toolError("%s", msg), nil, nil
	}
	return toolJSON(res.Data)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("failed to encode result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
