package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/guillermoBallester/sqlwarden/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, query *service.QueryService, tables *service.TableService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, query, tables, logger)

	return s
}
