package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("FitForge", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("FitForge training coach. Query workout templates, the open training cycle, cycle history, logged workouts, per-cycle coaching analyses and the latest per-exercise suggestions. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListTemplates, Handler: h.listTemplates},
		server.ServerTool{Tool: toolGetCurrentCycle, Handler: h.getCurrentCycle},
		server.ServerTool{Tool: toolGetCycleHistory, Handler: h.getCycleHistory},
		server.ServerTool{Tool: toolGetWorkouts, Handler: h.getWorkouts},
		server.ServerTool{Tool: toolGetAnalysis, Handler: h.getAnalysis},
		server.ServerTool{Tool: toolGetSuggestion, Handler: h.getSuggestion},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resTemplates, Handler: h.templatesResource},
		server.ServerResource{Resource: resCurrentCycle, Handler: h.currentCycleResource},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resTemplates = mcp.NewResource(
	"fitforge://templates",
	"Workout Templates",
	mcp.WithResourceDescription("Every workout template with its exercises, targets and rest periods"),
	mcp.WithMIMEType("application/json"),
)

var resCurrentCycle = mcp.NewResource(
	"fitforge://current_cycle",
	"Current Cycle",
	mcp.WithResourceDescription("The open training cycle: selected and completed workout templates"),
	mcp.WithMIMEType("application/json"),
)
