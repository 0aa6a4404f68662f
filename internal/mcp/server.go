package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Service *task.Service
	Store   store.Store
	Version string
}

// NewServer creates and configures the MCP server with all tools registered.
// Agent clients move tasks through the ownership lifecycle with the same
// rules and rejections as the HTTP surface.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"Beacon",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
