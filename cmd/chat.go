package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// replier answers one chat message.
type replier interface {
	HandleIncomingMessage(ctx context.Context, userID, text string) string
}

func newChatCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long: `Start an interactive session with the assistant as --user. The conversation
shares history, credentials and appointments with the Signal bot, so use your
Signal phone number to continue the same conversation.

Type /connect to link a Google account and /quit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			return runChat(ctx, orch, userID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id, e.g. your phone number +15551234567 (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// runChat reads lines from in until EOF, /quit or cancellation and writes
// each reply to out.
func runChat(ctx context.Context, r replier, userID string, in io.Reader, out io.Writer) error {
	prompt := color.New(color.FgCyan, color.Bold)
	assistant := color.New(color.FgGreen)
	hint := color.New(color.Faint)

	_, _ = hint.Fprintln(out, "Chatting as "+userID+". Type /quit to exit.")

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		errc <- scanner.Err()
		close(lines)
	}()

	for {
		_, _ = prompt.Fprint(out, "you> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			_, _ = fmt.Fprintln(out)
			return <-errc
		}

		text := strings.TrimSpace(line)
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply := r.HandleIncomingMessage(ctx, userID, text)
		_, _ = assistant.Fprintln(out, "meetmate> "+reply)
	}
}
