// Package mcpserver exposes the appointment command table over the Model
// Context Protocol so other agents can act on one user's calendar.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teemow/meetmate/internal/credentials"
	"github.com/teemow/meetmate/internal/dispatcher"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// Server name advertised to MCP clients.
const Name = "meetmate"

// Executor runs one operation against the user's providers.
type Executor interface {
	ExecuteCall(ctx context.Context, call model.ToolCall, userID string, session *credentials.Session) dispatcher.Result
}

// Sessions provides a live Google session for a user.
type Sessions interface {
	AcquireSession(ctx context.Context, userID string) (*credentials.Session, error)
}

// readOnlyOps may be registered without write access.
var readOnlyOps = map[string]bool{
	dispatcher.OpListAppointments: true,
}

// Config configures the MCP server.
type Config struct {
	// UserID is the account every call acts as.
	UserID string

	// Version is reported in the server handshake.
	Version string

	// ReadOnly registers only operations that do not change state.
	ReadOnly bool

	Logger *slog.Logger
}

// New builds an MCP server with one tool per registered operation.
func New(exec Executor, sessions Sessions, cfg Config) (*server.MCPServer, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	srv := server.NewMCPServer(Name, cfg.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	h := &handler{exec: exec, sessions: sessions, userID: cfg.UserID, logger: logging.WithUser(cfg.Logger, cfg.UserID)}
	for _, tool := range dispatcher.Tools() {
		if cfg.ReadOnly && !readOnlyOps[tool.Name] {
			continue
		}
		srv.AddTool(tool, h.tool(tool.Name))
	}
	registerResources(srv, h)
	return srv, nil
}

type handler struct {
	exec     Executor
	sessions Sessions
	userID   string
	logger   *slog.Logger
}

// tool adapts a dispatcher operation to an MCP tool handler. Dispatcher
// error results are returned as MCP tool errors carrying the same JSON.
func (h *handler) tool(op string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		session, err := h.sessions.AcquireSession(ctx, h.userID)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to acquire session", logging.Tool(op), logging.Err(err))
			return mcp.NewToolResultError(dispatcher.ErrorResult(err).JSON()), nil
		}

		call := model.ToolCall{ID: "mcp-" + uuid.NewString(), Operation: op, Arguments: string(raw)}
		res := h.exec.ExecuteCall(ctx, call, h.userID, session)
		if res.IsError() {
			return mcp.NewToolResultError(res.JSON()), nil
		}
		return mcp.NewToolResultText(res.JSON()), nil
	}
}

// ServeStdio serves srv over stdin/stdout until the client disconnects.
func ServeStdio(srv *server.MCPServer) error {
	if err := server.ServeStdio(srv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// ServeHTTP serves srv with the streamable HTTP transport on addr until ctx
// is cancelled.
func ServeHTTP(ctx context.Context, srv *server.MCPServer, addr string) error {
	httpSrv := server.NewStreamableHTTPServer(srv)

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.Start(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return httpSrv.Shutdown(context.Background())
	}
}
