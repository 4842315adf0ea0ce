package server

import (
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

// ServerContext holds shared dependencies for MCP tool handlers.
type ServerContext struct {
	Client xray.Client
	// DefaultProject is used when a tool call omits projectKey (optional).
	DefaultProject string
}
