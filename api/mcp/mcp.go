// Package mcp provides an MCP (Model Context Protocol) server for the
// keepsake memory engine.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/scope"
	"github.com/keepsake-sh/keepsake/pkg/utils"
)

type Config struct {
	// Engine handles fact ingestion and recall.
	Engine *engine.Engine

	// Scopes resolves scope identifiers before ingestion.
	Scopes *scope.Registry

	// DefaultPolicy is applied when an ingest call names no policy.
	DefaultPolicy memory.Policy

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "keepsake",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if c.Scopes == nil {
		return nil, errors.New("scope registry is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        recallToolName,
		Description: recallDescription,
	}, s.handleRecall)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        ingestToolName,
		Description: ingestDescription,
	}, s.handleIngest)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
