package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/meetmate/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	var (
		userID    string
		transport string
		httpAddr  string
		yolo      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the appointment tools over MCP",
		Long: `Start a Model Context Protocol server exposing the appointment operations
for one user, so other AI assistants can manage the same calendar.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on --http-addr

Safety Mode:
  By default only list_appointments is exposed.
  Use --yolo to enable operations that create, change, delete or send.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.RequireGoogle(); err != nil {
				return err
			}

			srv, err := mcpserver.New(a.dispatcher(), a.credentials(), mcpserver.Config{
				UserID:   userID,
				Version:  version,
				ReadOnly: !yolo,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}

			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(srv)
			case "streamable-http":
				a.logger.Info("starting MCP server", "transport", transport, "addr", httpAddr, "read_only", !yolo)
				return mcpserver.ServeHTTP(ctx, srv, httpAddr)
			default:
				return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id whose calendar the tools act on (required)")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8081", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
