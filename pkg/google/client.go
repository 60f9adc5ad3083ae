package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Provider is the external calendar: a refresh-token exchange followed by an
// event insert.
type Provider interface {
	Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	InsertEvent(ctx context.Context, tok *oauth2.Token, calendarID string, event *calendar.Event) (*calendar.Event, error)
}

// CalendarProvider talks to the Google Calendar API.
type CalendarProvider struct {
	oauth    *oauth2.Config
	endpoint string
}

// NewCalendarProvider creates a provider. endpoint overrides the API base URL
// and may be empty.
func NewCalendarProvider(oauth *oauth2.Config, endpoint string) *CalendarProvider {
	return &CalendarProvider{oauth: oauth, endpoint: endpoint}
}

// Exchange trades a stored refresh token for a short-lived access token.
func (p *CalendarProvider) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("unable to refresh Google token: %w", err)
	}
	return tok, nil
}

func (p *CalendarProvider) service(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar client: %w", err)
	}
	return srv, nil
}

// InsertEvent creates event on calendarID.
func (p *CalendarProvider) InsertEvent(ctx context.Context, tok *oauth2.Token, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	srv, err := p.service(ctx, tok)
	if err != nil {
		return nil, err
	}
	created, err := srv.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to insert event: %w", err)
	}
	return created, nil
}
