package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/meetmate/internal/logging"
)

var (
	debugMode bool
	logFormat string
	envFiles  []string
)

// rootCmd represents the base command for the meetmate application
var rootCmd = &cobra.Command{
	Use:   "meetmate",
	Short: "Conversational calendar assistant",
	Long: `meetmate is a chat assistant that books, moves and cancels Google Calendar
appointments from plain-language messages and reminds users before they start.

It can run as:
  - A Signal bot with background reminders (serve)
  - An interactive terminal chat (chat)
  - An MCP (Model Context Protocol) server for other AI assistants (mcp)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := logging.New(cmd.ErrOrStderr(), logFormat, debugMode)
		logger = logger.With(logging.Service("meetmate"))
		slog.SetDefault(logger)
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application. SIGINT and
// SIGTERM cancel the command's context.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "meetmate version %s\n" .Version}}`)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Environment files to load (default: .env)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newGenKeyCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
