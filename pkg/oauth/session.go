package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"calendarservice/pkg/apperr"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	oauth2v2 "google.golang.org/api/oauth2/v2"
)

// CalendarScopes grants read/write access to calendars and their events.
var CalendarScopes = []string{
	calendar.CalendarScope,
	calendar.CalendarEventsScope,
}

// Scopes returns the scopes to request at consent time.
func Scopes(resolveIdentity bool) []string {
	scopes := append([]string(nil), CalendarScopes...)
	if resolveIdentity {
		scopes = append(scopes, oauth2v2.UserinfoEmailScope)
	}
	return scopes
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
	// HTTPClient, if set, is used for calls to the token endpoint and as the base transport
	// for signed API clients.
	HTTPClient *http.Client
	// APIOptions are passed to the userinfo service.
	APIOptions []option.ClientOption
}

// Session talks to the provider's OAuth2 endpoints. It holds no credentials of its own;
// every signed call receives the token to use.
type Session struct {
	config     *oauth2.Config
	httpClient *http.Client
	apiOptions []option.ClientOption
}

func New(cfg Config) *Session {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = CalendarScopes
	}
	return &Session{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: cfg.HTTPClient,
		apiOptions: cfg.APIOptions,
	}
}

// AuthURL builds the consent redirect. Offline access is always requested; promptForConsent
// forces the provider to issue a new refresh token even if the user consented before.
func (s *Session) AuthURL(state string, scopes []string, promptForConsent bool) string {
	cfg := *s.config
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if promptForConsent {
		opts = append(opts, oauth2.ApprovalForce)
	}
	return cfg.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a credential.
func (s *Session) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	const op = "oauth.Exchange"
	if code == "" {
		return nil, apperr.ClientInput(op, apperr.ErrMissingCode)
	}
	tok, err := s.config.Exchange(s.context(ctx), code)
	if err != nil {
		return nil, classify(op, err, nil)
	}
	return tok, nil
}

// Refresh mints a new access token from tok's refresh token. The returned token carries the
// old refresh token when the provider does not rotate it.
func (s *Session) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	const op = "oauth.Refresh"
	if tok == nil || tok.RefreshToken == "" {
		return nil, apperr.Authorization(op, apperr.ErrNoRefreshToken)
	}
	src := s.config.TokenSource(s.context(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, classify(op, err, apperr.ErrRefreshRejected)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, nil
}

// Client returns an HTTP client that signs every request with exactly tok. It never refreshes.
func (s *Session) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	return oauth2.NewClient(s.context(ctx), oauth2.StaticTokenSource(tok))
}

func (s *Session) context(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// classify tags token endpoint failures. A 4xx answer means the provider rejected the grant;
// anything else is an upstream failure.
func classify(op string, err error, rejected error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.Response == nil || re.Response.StatusCode < http.StatusInternalServerError) {
		if rejected != nil {
			err = fmt.Errorf("%w: %v", rejected, err)
		}
		return apperr.Authorization(op, err)
	}
	return apperr.Upstream(op, err)
}
