package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"calendarservice/pkg/apperr"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	oauth2v2 "google.golang.org/api/oauth2/v2"
)

// ResolveIdentity looks up the email address of the account that granted tok.
func (s *Session) ResolveIdentity(ctx context.Context, tok *oauth2.Token) (string, error) {
	const op = "oauth.ResolveIdentity"
	opts := append([]option.ClientOption{option.WithHTTPClient(s.Client(ctx, tok))}, s.apiOptions...)
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return "", apperr.Upstream(op, fmt.Errorf("unable to create userinfo service: %w", err))
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
			return "", apperr.Authorization(op, err)
		}
		return "", apperr.Upstream(op, err)
	}
	if info.Email == "" {
		return "", apperr.Upstream(op, errors.New("userinfo response has no email"))
	}
	return info.Email, nil
}
