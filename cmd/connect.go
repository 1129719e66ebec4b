package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/meetmate/internal/credentials"
)

func newConnectCmd() *cobra.Command {
	var (
		userID string
		code   string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Link a user's Google Calendar",
		Long: `Print the Google consent URL for --user. After granting access, Google
redirects to GOOGLE_REDIRECT_URL with a "code" parameter. When "serve" is
running the callback is handled automatically; otherwise pass the code with
--code to store the credential.`,
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

			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintln(out, "Open this URL to connect Google Calendar:")
				fmt.Fprintln(out, a.auth.AuthURL(userID))
				return nil
			}

			cred, err := a.auth.Exchange(ctx, userID, code)
			if err != nil {
				return fmt.Errorf("failed to connect Google account: %w", err)
			}
			fmt.Fprintf(out, "Connected. Access token valid until %s.\n", cred.Expiry.Local().Format("2006-01-02 15:04 MST"))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id, e.g. the Signal phone number (required)")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code returned by Google")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a TOKEN_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentials.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
