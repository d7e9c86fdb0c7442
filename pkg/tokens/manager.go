package tokens

import (
	"context"
	"errors"
	"time"

	"calendarservice/pkg/apperr"
	"calendarservice/pkg/store"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const refreshTimeout = 30 * time.Second

// Refresher mints a new access token from a credential's refresh token.
type Refresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// Call is one authorized operation. It receives the credential to sign with.
type Call func(ctx context.Context, tok *oauth2.Token) error

// Manager moves credentials between the store and calls that need them, and owns the
// refresh-and-retry-once policy.
type Manager struct {
	store     store.CredentialStore
	refresher Refresher
	flight    singleflight.Group
}

func NewManager(s store.CredentialStore, r Refresher) *Manager {
	return &Manager{store: s, refresher: r}
}

// Hydrate loads the stored credential for identity. When none exists it returns an empty
// token and no error; calls signed with it fail authorization.
func (m *Manager) Hydrate(ctx context.Context, identity string) (*oauth2.Token, error) {
	tok, err := m.store.Get(ctx, identity)
	if errors.Is(err, apperr.ErrCredentialNotFound) {
		log.Debug().Str("identity", identity).Msg("no stored credential")
		return &oauth2.Token{}, nil
	}
	if err != nil {
		return nil, apperr.Wrapf(err, "hydrating credential for %s", identity)
	}
	return tok, nil
}

// Save persists a freshly exchanged credential.
func (m *Manager) Save(ctx context.Context, identity string, tok *oauth2.Token) error {
	if err := m.store.Upsert(ctx, identity, tok); err != nil {
		return apperr.Wrapf(err, "saving credential for %s", identity)
	}
	log.Info().Str("identity", identity).Time("expiry", tok.Expiry).Msg("credential saved")
	return nil
}

// HandleAuthFailure refreshes tok, persists the result and returns it. Concurrent callers for
// the same identity share a single provider refresh. Failures are terminal.
func (m *Manager) HandleAuthFailure(ctx context.Context, identity string, tok *oauth2.Token) (*oauth2.Token, error) {
	v, err, shared := m.flight.Do(identity, func() (interface{}, error) {
		// Callers share this refresh, so one of them going away must not cancel it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		fresh, err := m.refresher.Refresh(ctx, tok)
		if err != nil {
			return nil, err
		}
		if err := m.store.Upsert(ctx, identity, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("credential refresh failed")
		return nil, apperr.Wrapf(err, "refreshing credential for %s", identity)
	}
	log.Info().Str("identity", identity).Bool("shared", shared).Msg("credential refreshed")
	return v.(*oauth2.Token), nil
}

// Do runs call with the stored credential for identity. On an authorization failure the
// credential is refreshed and call runs exactly once more; its result is final.
func (m *Manager) Do(ctx context.Context, identity string, call Call) error {
	tok, err := m.Hydrate(ctx, identity)
	if err != nil {
		return err
	}

	err = call(ctx, tok)
	if !apperr.IsAuthorization(err) {
		return err
	}
	log.Warn().Err(err).Str("identity", identity).Msg("authorization failed, refreshing credential")

	fresh, err := m.HandleAuthFailure(ctx, identity, tok)
	if err != nil {
		return err
	}
	return call(ctx, fresh)
}
