package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teemow/meetmate/internal/dispatcher"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// Resource URIs.
const (
	UpcomingURI   = "meetmate://appointments/upcoming"
	ConnectionURI = "meetmate://user/connection"
)

// registerResources adds read-only views of the user's calendar state.
func registerResources(srv *server.MCPServer, h *handler) {
	upcoming := mcp.NewResource(
		UpcomingURI,
		"Upcoming Appointments",
		mcp.WithResourceDescription("The next appointments on the user's calendar"),
		mcp.WithMIMEType("application/json"),
	)
	srv.AddResource(upcoming, h.upcoming)

	connection := mcp.NewResource(
		ConnectionURI,
		"Calendar Connection",
		mcp.WithResourceDescription("Whether the user has linked a Google account"),
		mcp.WithMIMEType("application/json"),
	)
	srv.AddResource(connection, h.connection)
}

func (h *handler) upcoming(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	session, err := h.sessions.AcquireSession(ctx, h.userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to acquire session", logging.Err(err))
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}

	call := model.ToolCall{ID: "mcp-" + uuid.NewString(), Operation: dispatcher.OpListAppointments, Arguments: "{}"}
	res := h.exec.ExecuteCall(ctx, call, h.userID, session)
	if res.IsError() {
		return nil, fmt.Errorf("failed to list appointments: %s", res.Message)
	}
	return jsonContents(request.Params.URI, res.Data)
}

type connectionView struct {
	Connected bool `json:"connected"`
	Stale     bool `json:"stale,omitempty"`
}

func (h *handler) connection(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	session, err := h.sessions.AcquireSession(ctx, h.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	view := connectionView{Connected: session != nil}
	if session != nil {
		view.Stale = session.Stale
	}
	return jsonContents(request.Params.URI, view)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
