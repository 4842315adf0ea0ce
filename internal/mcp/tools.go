package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/xray-mcp-server/internal/server"
)

type toolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// RegisterTools registers all MCP tools with the server.
func RegisterTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil || sc.Client == nil {
		return fmt.Errorf("xray client is not configured")
	}
	registerImportTools(s, sc)
	registerExecutionTools(s, sc)
	registerQueryTools(s, sc)
	return nil
}

// addTool registers h under tool.Name with per-call logging. A panicking
// handler is turned into an error result.
func addTool(s *mcpserver.MCPServer, sc *server.ServerContext, tool mcp.Tool, h toolHandler) {
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return invoke(ctx, tool.Name, request, sc, h)
	})
}

func invoke(ctx context.Context, name string, request mcp.CallToolRequest, sc *server.ServerContext, h toolHandler) (result *mcp.CallToolResult, err error) {
	callID := uuid.NewString()
	start := time.Now()
	slog.Debug("tool call started", "tool", name, "call_id", callID)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool handler panicked", "tool", name, "call_id", callID, "panic", r)
			result, err = toolError(fmt.Errorf("internal error in %s", name)), nil
		}
		slog.Info("tool call",
			"tool", name,
			"call_id", callID,
			"duration", time.Since(start).String(),
			"is_error", result != nil && result.IsError,
		)
	}()

	return h(ctx, request, sc)
}
