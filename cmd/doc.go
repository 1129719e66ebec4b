// Package cmd implements the command-line interface for meetmate.
//
// This package provides the following commands:
//   - serve: Run the Signal assistant, reminder scheduler, health and metrics servers
//   - sweep: Run a single reminder sweep
//   - chat: Talk to the assistant in the terminal
//   - connect: Link a user's Google Calendar
//   - mcp: Serve the appointment tools over MCP
//   - gen-key: Generate a token encryption key
//   - generate-docs: Generate markdown documentation for the appointment tools
//   - version: Display version information
package cmd
