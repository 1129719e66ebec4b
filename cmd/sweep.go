package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/meetmate/internal/reminder"
	"github.com/teemow/meetmate/internal/signal"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and exit",
		Long: `Check every upcoming appointment once and send the reminders that are due.
Useful from cron when the reminder scheduler of "serve" is disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.RequireSignal(); err != nil {
				return err
			}
			sig, err := signal.NewClient(a.cfg.SignalAccount, signal.WithLogger(a.logger))
			if err != nil {
				return err
			}

			scheduler := reminder.New(a.store, sig,
				reminder.WithLocation(a.cfg.Location()),
				reminder.WithLogger(a.logger),
				reminder.WithMetrics(a.metrics()),
			)
			stats, err := scheduler.RunTick(ctx)
			if err != nil {
				return fmt.Errorf("reminder sweep failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "considered=%d sent=%d failed=%d contended=%d\n",
				stats.Considered, stats.Sent, stats.Failed, stats.Contended)
			return nil
		},
	}
}
