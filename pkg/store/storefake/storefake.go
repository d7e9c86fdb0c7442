package storefake

import (
	"context"
	"errors"
	"sync"

	"calendarservice/pkg/apperr"
	"calendarservice/pkg/store"

	"golang.org/x/oauth2"
)

var _ store.CredentialStore = (*FakeStore)(nil)

// FakeStore is an in-memory CredentialStore that counts its calls.
type FakeStore struct {
	tokens  map[string]oauth2.Token
	lock    sync.RWMutex
	gets    int
	upserts int
}

func New() *FakeStore {
	return &FakeStore{tokens: make(map[string]oauth2.Token)}
}

func (s *FakeStore) Get(_ context.Context, identity string) (*oauth2.Token, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.gets++

	tok, ok := s.tokens[identity]
	if !ok {
		return nil, apperr.NotFound("storefake.Get", apperr.ErrCredentialNotFound)
	}
	return &tok, nil
}

func (s *FakeStore) Upsert(_ context.Context, identity string, token *oauth2.Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.upserts++

	if identity == "" {
		return apperr.ClientInput("storefake.Upsert", apperr.ErrEmptyIdentity)
	}
	if token == nil || token.AccessToken == "" {
		return apperr.ClientInput("storefake.Upsert", apperr.ErrNoAccessToken)
	}
	next := oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = s.tokens[identity].RefreshToken
	}
	s.tokens[identity] = next
	return nil
}

// Put seeds a credential without counting it as an upsert.
func (s *FakeStore) Put(identity string, token oauth2.Token) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokens[identity] = token
}

func (s *FakeStore) Upserts() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.upserts
}

func (s *FakeStore) Gets() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.gets
}

func (s *FakeStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.tokens)
}

// ErrUnavailable is returned by FailingStore.
var ErrUnavailable = errors.New("database unavailable")

// FailingStore fails every call with a storage error.
type FailingStore struct{}

var _ store.CredentialStore = FailingStore{}

func (FailingStore) Get(context.Context, string) (*oauth2.Token, error) {
	return nil, apperr.Storage("storefake.Get", ErrUnavailable)
}

func (FailingStore) Upsert(context.Context, string, *oauth2.Token) error {
	return apperr.Storage("storefake.Upsert", ErrUnavailable)
}
