// Package auth handles the Google Calendar consent flow and the bearer
// tokens that identify owners to the API.
package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

type GoogleSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthConfig builds the Google OAuth2 client configuration. Only the
// calendar events scope is requested.
func OAuthConfig(s GoogleSettings) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarEventsScope},
	}
}

// Configured reports whether client credentials are present.
func (s GoogleSettings) Configured() bool {
	return strings.TrimSpace(s.ClientID) != "" && strings.TrimSpace(s.ClientSecret) != ""
}

// ConsentURL returns the URL the owner visits to grant calendar access.
// AccessTypeOffline and prompt=consent make Google return a refresh token.
func ConsentURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for tokens and returns the
// refresh token.
func ExchangeCode(ctx context.Context, cfg *oauth2.Config, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("authorization code is empty")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("unable to retrieve token from Google: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("google did not return a refresh token")
	}
	return tok.RefreshToken, nil
}
