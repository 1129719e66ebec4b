package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/meetmate/internal/model"
)

type recordingStore struct {
	mu    sync.Mutex
	saved []model.Credential
}

func (s *recordingStore) SaveCredential(_ context.Context, c *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *c)
	return nil
}

func newTestAuthenticator(t *testing.T, tokenStatus int) (*Authenticator, *recordingStore) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/calendar https://www.googleapis.com/auth/gmail.send"}`))
	}))
	t.Cleanup(srv.Close)

	store := &recordingStore{}
	a := NewAuthenticator("client-id", "client-secret", "https://bot.example.com/oauth/callback", store).
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  srv.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		})
	return a, store
}

func TestAuthURL(t *testing.T) {
	a, _ := newTestAuthenticator(t, http.StatusOK)
	require.True(t, a.Configured())

	u, err := url.Parse(a.AuthURL("+573001234567"))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "+573001234567", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "true", q.Get("include_granted_scopes"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/calendar")
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/gmail.send")
}

func TestExchangeStoresCredential(t *testing.T) {
	a, store := newTestAuthenticator(t, http.StatusOK)
	var connected string
	a.OnConnected = func(_ context.Context, userID string) { connected = userID }

	cred, err := a.Exchange(context.Background(), "u1", "code-123")
	require.NoError(t, err)

	assert.Equal(t, "u1", cred.UserID)
	assert.Equal(t, "at", cred.AccessToken)
	assert.Equal(t, "rt", cred.RefreshToken)
	assert.Equal(t, "client-id", cred.ClientID)
	assert.Len(t, cred.Scopes, 2)
	assert.False(t, cred.Expiry.IsZero())
	require.Len(t, store.saved, 1)
	assert.Equal(t, "u1", connected)
}

func TestExchangeErrors(t *testing.T) {
	a, store := newTestAuthenticator(t, http.StatusBadRequest)

	_, err := a.Exchange(context.Background(), "", "code")
	assert.Equal(t, model.KindValidation, model.ErrorKind(err))

	_, err = a.Exchange(context.Background(), "u1", "")
	assert.Equal(t, model.KindValidation, model.ErrorKind(err))

	_, err = a.Exchange(context.Background(), "u1", "bad-code")
	assert.Equal(t, model.KindProvider, model.ErrorKind(err))
	assert.Empty(t, store.saved)
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		method     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"success", http.StatusOK, http.MethodGet, "?state=u1&code=abc", http.StatusOK, "connected"},
		{"denied", http.StatusOK, http.MethodGet, "?error=access_denied", http.StatusBadRequest, "access_denied"},
		{"missing state", http.StatusOK, http.MethodGet, "?code=abc", http.StatusBadRequest, "Invalid"},
		{"exchange fails", http.StatusBadRequest, http.MethodGet, "?state=u1&code=abc", http.StatusBadGateway, "/connect"},
		{"wrong method", http.StatusOK, http.MethodPost, "", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAuthenticator(t, tt.status)
			rec := httptest.NewRecorder()
			a.CallbackHandler().ServeHTTP(rec, httptest.NewRequest(tt.method, "/oauth/callback"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
