// Package tools publishes the agent's movie tools over the Model Context
// Protocol so external assistants can call them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/agent"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	lctools "github.com/tmc/langchaingo/tools"
)

const serverName = "movie-service"

// NewServer returns an MCP server exposing each tool. Tools that publish a
// parameter schema advertise it; the rest accept any object.
func NewServer(version string, toolset ...lctools.Tool) (*server.MCPServer, error) {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	for _, t := range toolset {
		schema := map[string]any{"type": "object"}
		if p, ok := t.(agent.ParameterSchema); ok {
			schema = p.Parameters()
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name(), err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), raw), Handler(t))
	}
	return s, nil
}

// Handler adapts a text-in text-out tool to an MCP tool handler. Tool
// failures are reported to the caller as error results.
func Handler(t lctools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		input, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		out, err := t.Call(ctx, string(input))
		if err != nil {
			log.Warn("MCP tool call failed", "tool", t.Name(), "err", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// MountRoutes serves the MCP streamable-HTTP transport at path.
func MountRoutes(r *gin.Engine, path, version string, toolset ...lctools.Tool) error {
	s, err := NewServer(version, toolset...)
	if err != nil {
		return err
	}
	h := gin.WrapH(server.NewStreamableHTTPServer(s, server.WithStateLess(true)))
	r.POST(path, h)
	r.GET(path, h)
	r.DELETE(path, h)
	log.Info("MCP tools endpoint mounted", "path", path, "tools", len(toolset))
	return nil
}
