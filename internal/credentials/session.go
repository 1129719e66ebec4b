package credentials

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/meetmate/internal/model"
)

// SessionTimeout bounds every provider call made through a session.
const SessionTimeout = 30 * time.Second

// Session is a live handle for calling Google on a user's behalf.
type Session struct {
	UserID string
	Token  *oauth2.Token

	// Stale is set when a needed refresh failed and Token is the stored,
	// possibly expired, token.
	Stale bool

	client *http.Client
}

// HTTPClient returns a client that authorizes requests with the
// session's access token.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

func (m *Manager) newSession(cred *model.Credential, stale bool) *Session {
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.Expiry,
	}

	var base http.RoundTripper
	if m.httpClient != nil && m.httpClient.Transport != nil {
		base = m.httpClient.Transport
	} else {
		// Google APIs occasionally reset HTTP/2 streams mid-request.
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ForceAttemptHTTP2 = false
		base = t
	}

	return &Session{
		UserID: cred.UserID,
		Token:  tok,
		Stale:  stale,
		client: &http.Client{
			Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(tok), Base: base},
			Timeout:   SessionTimeout,
		},
	}
}
