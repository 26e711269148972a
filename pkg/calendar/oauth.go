package calendar

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

// OAuthConfig builds the Google OAuth configuration used for both the
// consent flow and token refresh.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gcal.CalendarScope},
		Endpoint:     google.Endpoint,
	}
}

// AuthURL returns the consent URL. Offline access with forced consent, so
// Google issues a refresh token even on repeat authorizations.
func AuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAndStore swaps an authorization code for a token and persists it
// for the user.
func ExchangeAndStore(ctx context.Context, cfg *oauth2.Config, store TokenStore, userID, code string) error {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	return store.SaveToken(ctx, userID, string(raw))
}
