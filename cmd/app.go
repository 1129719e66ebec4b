package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/meetmate/internal/agent"
	"github.com/teemow/meetmate/internal/config"
	"github.com/teemow/meetmate/internal/conversation"
	"github.com/teemow/meetmate/internal/credentials"
	"github.com/teemow/meetmate/internal/dispatcher"
	"github.com/teemow/meetmate/internal/google"
	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/lock"
	"github.com/teemow/meetmate/internal/store"
)

// lockPrefix namespaces the distributed lock keys in Valkey.
const lockPrefix = "meetmate:lock:"

// app holds the components shared by the long-running commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	audit    *instrumentation.AuditLogger
	store    *store.SQLStore
	locker   lock.Locker
	auth     *google.Authenticator

	closers []func()
}

// newApp loads configuration, starts instrumentation and opens the store.
// Callers must Close the app.
func newApp(ctx context.Context) (a *app, err error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	a = &app{cfg: cfg, logger: slog.Default()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	a.provider, err = instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := a.provider.Shutdown(context.Background()); err != nil {
			a.logger.Warn("error during instrumentation shutdown", "error", err)
		}
	})
	a.audit = instrumentation.NewAuditLoggerWithConfig(a.logger, instrConfig.AuditLogging)

	key, err := credentials.KeyFromBase64(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ENCRYPTION_KEY: %w", err)
	}
	cipher, err := credentials.NewTokenCipher(key)
	if err != nil {
		return nil, err
	}
	if !cipher.Enabled() {
		a.logger.Warn("TOKEN_ENCRYPTION_KEY not set, OAuth tokens are stored unencrypted")
	}

	a.store, err = store.Open(ctx, cfg.DatabaseURL, store.WithCipher(cipher))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })

	if cfg.ValkeyURL != "" {
		v, err := lock.NewValkey(cfg.ValkeyURL, lockPrefix)
		if err != nil {
			return nil, err
		}
		a.locker = v
		a.closers = append(a.closers, v.Close)
		a.logger.Info("using distributed per-user locks")
	} else {
		a.locker = lock.NewLocal()
	}

	a.auth = google.NewAuthenticator(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, a.store).
		WithLogger(a.logger).
		WithMetrics(a.metrics())

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) metrics() *instrumentation.Metrics {
	if a.provider == nil {
		return nil
	}
	return a.provider.Metrics()
}

func (a *app) credentials() *credentials.Manager {
	return credentials.NewManager(a.store,
		credentials.WithOAuthConfig(a.auth.Config()),
		credentials.WithLocker(a.locker),
		credentials.WithLogger(a.logger),
		credentials.WithMetrics(a.metrics()),
	)
}

func (a *app) dispatcher() *dispatcher.Dispatcher {
	factory := &dispatcher.GoogleFactory{
		CalendarID: a.cfg.CalendarID,
		TimeZone:   a.cfg.TimeZone,
		Metrics:    a.metrics(),
	}
	return dispatcher.New(a.store, factory,
		dispatcher.WithLocation(a.cfg.Location()),
		dispatcher.WithLogger(a.logger),
		dispatcher.WithMetrics(a.metrics()),
		dispatcher.WithAuditLogger(a.audit),
	)
}

func (a *app) orchestrator() (*conversation.Orchestrator, error) {
	if err := a.cfg.RequireAgent(); err != nil {
		return nil, err
	}
	if err := a.cfg.RequireGoogle(); err != nil {
		return nil, err
	}

	llm := agent.NewOpenAI(a.cfg.OpenAIAPIKey,
		agent.WithModel(a.cfg.OpenAIModel),
		agent.WithBaseURL(a.cfg.OpenAIBaseURL),
		agent.WithLocation(a.cfg.Location()),
		agent.WithLogger(a.logger),
		agent.WithMetrics(a.metrics()),
	)
	return conversation.New(a.store, llm, a.dispatcher(), a.credentials(),
		conversation.WithLocker(a.locker),
		conversation.WithConnector(a.auth),
		conversation.WithHistoryLimit(a.cfg.HistoryLimit),
		conversation.WithLogger(a.logger),
		conversation.WithMetrics(a.metrics()),
	), nil
}
