// Package credentials keeps per-user Google access alive. AcquireSession
// loads a user's stored credential, refreshes it when it is about to
// expire and hands back a Session whose HTTP client authorizes calendar
// and mail calls.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/lock"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// DefaultRefreshThreshold refreshes tokens that expire within this window.
const DefaultRefreshThreshold = 5 * time.Minute

// acquireTimeout bounds a shared credential lookup and refresh.
const acquireTimeout = 30 * time.Second

// Store is the credential persistence the manager needs.
type Store interface {
	GetCredential(ctx context.Context, userID string) (*model.Credential, error)
	SaveCredential(ctx context.Context, cred *model.Credential) error
}

// Manager implements the credential lifecycle. Refreshes for one user are
// serialized: concurrent callers in this process share one refresh, and
// the Locker extends that across processes.
type Manager struct {
	store      Store
	oauth      oauth2.Config
	locker     lock.Locker
	group      singleflight.Group
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	httpClient *http.Client
	now        func() time.Time
	threshold  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithOAuthConfig sets the client id, secret and endpoint used when a
// stored credential does not carry its own.
func WithOAuthConfig(cfg oauth2.Config) Option {
	return func(m *Manager) { m.oauth = cfg }
}

// WithLocker replaces the in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHTTPClient sets the client used for token endpoint requests and as
// the base transport of issued sessions.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRefreshThreshold overrides DefaultRefreshThreshold.
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) { m.threshold = d }
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		oauth:     oauth2.Config{Endpoint: google.Endpoint},
		locker:    lock.NewLocal(),
		logger:    slog.Default(),
		metrics:   &instrumentation.Metrics{},
		now:       time.Now,
		threshold: DefaultRefreshThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AcquireSession returns a session for userID, refreshing the stored
// token first when needed.
//
// A user without a stored credential yields (nil, nil). A failed refresh
// is logged and the session is built from the stale token; the calendar
// call that uses it will then fail with an auth error. An error is only
// returned when the credential store itself fails or ctx is done.
//
// Concurrent callers for the same user share one lookup. The shared work
// is detached from any single caller's cancellation and bounded by
// acquireTimeout; each caller still returns as soon as its own ctx is done.
func (m *Manager) AcquireSession(ctx context.Context, userID string) (*Session, error) {
	ctx, span := instrumentation.StartSpan(ctx, instrumentation.SpanCredentialAcquire,
		attribute.String(instrumentation.SpanAttrUserHash, logging.AnonymizeUser(userID)))

	ch := m.group.DoChan(userID, func() (any, error) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), acquireTimeout)
		defer cancel()
		return m.acquire(actx, userID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		res.Err = ctx.Err()
	case res = <-ch:
	}
	instrumentation.EndSpan(span, res.Err)
	if res.Err != nil {
		return nil, res.Err
	}
	s, _ := res.Val.(*Session)
	return s, nil
}

func (m *Manager) acquire(ctx context.Context, userID string) (*Session, error) {
	logger := logging.WithUser(m.logger, userID)

	unlock, err := m.locker.Lock(ctx, "credential:"+userID)
	if err != nil {
		return nil, &model.PersistenceError{Op: "acquire_session", Err: fmt.Errorf("lock credential: %w", err)}
	}
	defer unlock()

	cred, err := m.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		logger.Debug("no credential stored")
		return nil, nil
	}

	stale := false
	if m.needsRefresh(cred) {
		stale = !m.refresh(ctx, logger, cred)
	}
	return m.newSession(cred, stale), nil
}

func (m *Manager) needsRefresh(cred *model.Credential) bool {
	if cred.AccessToken == "" {
		return true
	}
	if cred.Expiry.IsZero() {
		return false
	}
	return !m.now().Add(m.threshold).Before(cred.Expiry)
}

// refresh exchanges the refresh token and writes the new access token
// back. It reports whether cred now holds a fresh token.
func (m *Manager) refresh(ctx context.Context, logger *slog.Logger, cred *model.Credential) bool {
	if cred.RefreshToken == "" {
		logger.Warn("access token expired and no refresh token stored")
		m.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshSkipped)
		return false
	}

	start := time.Now()
	tok, err := refreshToken(ctx, m.configFor(cred), cred.RefreshToken, m.httpClient)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, "refresh", status, time.Since(start))

	if err != nil {
		logger.Warn("token refresh failed, using stored token", logging.Err(err))
		m.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshFailure)
		return false
	}
	m.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshSuccess)

	cred.AccessToken = tok.AccessToken
	cred.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		// The refreshed token is still valid for this session.
		logger.Error("failed to persist refreshed token", logging.Err(err))
	} else {
		logger.Debug("token refreshed", slog.Time("expiry", cred.Expiry))
	}
	return true
}

func (m *Manager) configFor(cred *model.Credential) *oauth2.Config {
	cfg := m.oauth
	if cred.ClientID != "" {
		cfg.ClientID = cred.ClientID
		cfg.ClientSecret = cred.ClientSecret
	}
	if cred.TokenURI != "" {
		cfg.Endpoint.TokenURL = cred.TokenURI
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.Endpoint.AuthStyle == oauth2.AuthStyleAutoDetect {
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	cfg.Scopes = cred.Scopes
	return &cfg
}
