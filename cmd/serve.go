package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/meetmate/internal/chat"
	"github.com/teemow/meetmate/internal/reminder"
	"github.com/teemow/meetmate/internal/server"
	"github.com/teemow/meetmate/internal/signal"
)

// ConnectedMessage is sent over chat once a user's Google account is linked.
const ConnectedMessage = "Your Google Calendar is connected. What would you like to schedule?"

// serveOptions are flag overrides for the serve command.
type serveOptions struct {
	noReminders    bool
	noChat         bool
	metricsEnabled bool
	metricsAddr    string
	healthAddr     string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Signal assistant and the reminder scheduler",
		Long: `Run the assistant: receive Signal messages, answer them through the language
model, and send appointment reminders 24h, 3h, 1h and 15min before they start.

Also serves:
  - Health probes and the Google OAuth callback on --health-addr
  - Prometheus metrics on --metrics-addr

Configuration is read from the environment and .env (see SIGNAL_ACCOUNT,
OPENAI_API_KEY, GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URL).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noReminders, "no-reminders", false, "Do not run the reminder scheduler")
	cmd.Flags().BoolVar(&opts.noChat, "no-chat", false, "Do not receive chat messages (reminders only)")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated port")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Metrics server address (default: METRICS_ADDR or :9090)")
	cmd.Flags().StringVar(&opts.healthAddr, "health-addr", "", "Health and OAuth callback address (default: HEALTH_ADDR or :8080)")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.healthAddr != "" {
		cfg.HealthAddr = opts.healthAddr
	}
	if err := cfg.RequireSignal(); err != nil {
		return err
	}

	sig, err := signal.NewClient(cfg.SignalAccount, signal.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.auth.OnConnected = func(ctx context.Context, userID string) {
		if err := sig.Send(ctx, userID, ConnectedMessage); err != nil {
			a.logger.WarnContext(ctx, "failed to confirm connection", "error", err)
		}
	}

	var metricsServer *server.MetricsServer
	if opts.metricsEnabled && a.provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: a.provider,
			Logger:                  a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	var listener *chat.Listener
	if !opts.noChat {
		orch, err := a.orchestrator()
		if err != nil {
			return err
		}
		listener = chat.NewListener(sig, orch,
			chat.WithPollInterval(cfg.SignalPollInterval),
			chat.WithRatePerMinute(cfg.InboundRatePerMinute),
			chat.WithAllowedSenders(cfg.AllowedSenders),
			chat.WithLogger(a.logger),
			chat.WithMetrics(a.metrics()),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	if listener != nil {
		g.Go(func() error { return listener.Run(gctx) })
	}

	if !opts.noReminders {
		scheduler := reminder.New(a.store, sig,
			reminder.WithInterval(cfg.ReminderInterval),
			reminder.WithLocation(cfg.Location()),
			reminder.WithLogger(a.logger),
			reminder.WithMetrics(a.metrics()),
		)
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	health := server.NewHealthChecker(a.store, version)
	httpConfig := server.HTTPServerConfig{
		Addr:    cfg.HealthAddr,
		Health:  health,
		Metrics: a.metrics(),
		Logger:  a.logger,
	}
	if a.auth.Configured() {
		httpConfig.Callback = a.auth.CallbackHandler()
	} else {
		a.logger.Warn("Google OAuth client not configured, /oauth/callback disabled")
	}
	httpServer := server.NewHTTPServer(httpConfig)
	g.Go(func() error { return httpServer.Run(gctx) })

	if metricsServer != nil {
		g.Go(func() error { return metricsServer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		health.SetShuttingDown()
		return nil
	})

	a.logger.Info("meetmate started", "version", version)
	err = g.Wait()
	a.logger.Info("meetmate stopped")
	return err
}
