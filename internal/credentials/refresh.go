package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// refreshToken performs a refresh_token grant against config's token
// endpoint. The request is always sent: a token carrying only the refresh
// token is never considered valid by oauth2.
func refreshToken(ctx context.Context, config *oauth2.Config, refresh string, httpClient *http.Client) (*oauth2.Token, error) {
	if refresh == "" {
		return nil, errors.New("no refresh token available")
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	tok, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tok, nil
}
