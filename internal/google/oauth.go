package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// CredentialStore persists the credential produced by a successful exchange.
type CredentialStore interface {
	SaveCredential(ctx context.Context, cred *model.Credential) error
}

// Authenticator runs the authorization-code flow for chat users. The
// OAuth state parameter carries the chat user id.
type Authenticator struct {
	config     *oauth2.Config
	store      CredentialStore
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics

	// OnConnected, when set, is called after a credential is stored.
	OnConnected func(ctx context.Context, userID string)
}

// NewAuthenticator creates an Authenticator for the given OAuth client.
func NewAuthenticator(clientID, clientSecret, redirectURL string, store CredentialStore) *Authenticator {
	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       DefaultOAuthScopes,
		},
		store:   store,
		logger:  slog.Default(),
		metrics: &instrumentation.Metrics{},
	}
}

// WithEndpoint overrides the Google endpoint.
func (a *Authenticator) WithEndpoint(ep oauth2.Endpoint) *Authenticator {
	a.config.Endpoint = ep
	return a
}

// WithHTTPClient sets the client used for the code exchange.
func (a *Authenticator) WithHTTPClient(c *http.Client) *Authenticator {
	a.httpClient = c
	return a
}

// WithLogger sets the logger.
func (a *Authenticator) WithLogger(l *slog.Logger) *Authenticator {
	a.logger = l
	return a
}

// WithMetrics sets the metrics recorder.
func (a *Authenticator) WithMetrics(m *instrumentation.Metrics) *Authenticator {
	a.metrics = m
	return a
}

// Config returns the OAuth client configuration.
func (a *Authenticator) Config() oauth2.Config {
	return *a.config
}

// Configured reports whether client credentials are present.
func (a *Authenticator) Configured() bool {
	return a.config.ClientID != "" && a.config.ClientSecret != ""
}

// AuthURL returns the consent URL for userID. It asks for offline access
// and forces the consent screen so Google always issues a refresh token.
func (a *Authenticator) AuthURL(userID string) string {
	return a.config.AuthCodeURL(userID,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for tokens and stores them as
// userID's credential.
func (a *Authenticator) Exchange(ctx context.Context, userID, code string) (*model.Credential, error) {
	if userID == "" {
		return nil, model.Invalid("oauth_exchange", "missing user id in state")
	}
	if code == "" {
		return nil, model.Invalid("oauth_exchange", "missing authorization code")
	}
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, "exchange")
	start := time.Now()
	tok, err := a.config.Exchange(ctx, code)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	a.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, "exchange", status, time.Since(start))
	instrumentation.EndSpan(span, err)
	if err != nil {
		return nil, &model.ExternalProviderError{Op: "oauth_exchange", Provider: instrumentation.ServiceOAuth, Err: err}
	}

	cred := &model.Credential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     a.config.Endpoint.TokenURL,
		ClientID:     a.config.ClientID,
		ClientSecret: a.config.ClientSecret,
		Scopes:       grantedScopes(tok, a.config.Scopes),
		Expiry:       tok.Expiry,
	}
	if err := a.store.SaveCredential(ctx, cred); err != nil {
		return nil, err
	}

	logging.WithUser(a.logger, userID).Info("google account connected",
		slog.Bool("refresh_token", cred.RefreshToken != ""))
	if a.OnConnected != nil {
		a.OnConnected(ctx, userID)
	}
	return cred, nil
}

func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(s) != "" {
		return strings.Fields(s)
	}
	return append([]string(nil), requested...)
}

// CallbackHandler serves the OAuth redirect: GET ?code=...&state=<user id>.
func (a *Authenticator) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			a.logger.Warn("authorization denied", slog.String("reason", e))
			writePage(w, http.StatusBadRequest, "Authorization was not granted: "+e)
			return
		}

		_, err := a.Exchange(r.Context(), q.Get("state"), q.Get("code"))
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				writePage(w, http.StatusBadRequest, "Invalid authorization response.")
				return
			}
			a.logger.Error("oauth callback failed", logging.Err(err))
			writePage(w, http.StatusBadGateway, "Could not connect your Google account. Please try /connect again.")
			return
		}
		writePage(w, http.StatusOK, "Google Calendar connected. You can go back to the chat.")
	})
}

func writePage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "<!doctype html><html><body><p>%s</p></body></html>", html.EscapeString(msg))
}
