package tokens_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"calendarservice/pkg/apperr"
	"calendarservice/pkg/store/storefake"
	"calendarservice/pkg/tokens"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const identity = "sherin@example.com"

type fakeRefresher struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if tok.RefreshToken == "" {
		return nil, apperr.Authorization("fake.Refresh", apperr.ErrNoRefreshToken)
	}
	return &oauth2.Token{AccessToken: "fresh", RefreshToken: tok.RefreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func seeded() *storefake.FakeStore {
	s := storefake.New()
	s.Put(identity, oauth2.Token{AccessToken: "stale", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour)})
	return s
}

func unauthorized() error {
	return apperr.Authorization("calendar.List", errors.New("401 Invalid Credentials"))
}

func TestHydrateWithoutCredential(t *testing.T) {
	m := tokens.NewManager(storefake.New(), &fakeRefresher{})

	tok, err := m.Hydrate(context.Background(), identity)
	require.NoError(t, err)
	require.NotNil(t, tok)
	require.Empty(t, tok.AccessToken)
}

func TestHydratePropagatesStorageErrors(t *testing.T) {
	m := tokens.NewManager(storefake.FailingStore{}, &fakeRefresher{})

	_, err := m.Hydrate(context.Background(), identity)
	require.ErrorIs(t, err, storefake.ErrUnavailable)
	require.Equal(t, apperr.KindStorage, apperr.KindOf(err))
}

func TestDoSucceedsWithoutRefresh(t *testing.T) {
	s := seeded()
	r := &fakeRefresher{}
	m := tokens.NewManager(s, r)

	var seen []string
	err := m.Do(context.Background(), identity, func(_ context.Context, tok *oauth2.Token) error {
		seen = append(seen, tok.AccessToken)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"stale"}, seen)
	require.EqualValues(t, 0, r.calls.Load())
	require.Equal(t, 0, s.Upserts())
}

func TestDoRefreshesAndRetriesOnce(t *testing.T) {
	s := seeded()
	r := &fakeRefresher{}
	m := tokens.NewManager(s, r)

	var seen []string
	err := m.Do(context.Background(), identity, func(_ context.Context, tok *oauth2.Token) error {
		seen = append(seen, tok.AccessToken)
		if tok.AccessToken == "stale" {
			return unauthorized()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"stale", "fresh"}, seen)
	require.EqualValues(t, 1, r.calls.Load())
	require.Equal(t, 1, s.Upserts())

	stored, err := s.Get(context.Background(), identity)
	require.NoError(t, err)
	require.Equal(t, "fresh", stored.AccessToken)
	require.Equal(t, "refresh", stored.RefreshToken)
}

func TestDoDoesNotRefreshTwice(t *testing.T) {
	s := seeded()
	r := &fakeRefresher{}
	m := tokens.NewManager(s, r)

	calls := 0
	err := m.Do(context.Background(), identity, func(context.Context, *oauth2.Token) error {
		calls++
		return unauthorized()
	})
	require.True(t, apperr.IsAuthorization(err))
	require.Equal(t, 2, calls)
	require.EqualValues(t, 1, r.calls.Load())
}

func TestDoDoesNotRetryOtherFailures(t *testing.T) {
	r := &fakeRefresher{}
	m := tokens.NewManager(seeded(), r)
	upstream := apperr.Upstream("calendar.List", errors.New("503"))

	calls := 0
	err := m.Do(context.Background(), identity, func(context.Context, *oauth2.Token) error {
		calls++
		return upstream
	})
	require.ErrorIs(t, err, upstream)
	require.Equal(t, 1, calls)
	require.EqualValues(t, 0, r.calls.Load())
}

func TestDoWithoutCredentialIsTerminal(t *testing.T) {
	s := storefake.New()
	r := &fakeRefresher{}
	m := tokens.NewManager(s, r)

	calls := 0
	err := m.Do(context.Background(), identity, func(_ context.Context, tok *oauth2.Token) error {
		calls++
		require.Empty(t, tok.AccessToken)
		return apperr.Authorization("calendar.List", apperr.ErrNoAccessToken)
	})
	require.ErrorIs(t, err, apperr.ErrNoRefreshToken)
	require.True(t, apperr.IsAuthorization(err))
	require.Equal(t, 1, calls)
	require.Equal(t, 0, s.Upserts())
}

func TestRefreshRejectedIsTerminal(t *testing.T) {
	s := seeded()
	r := &fakeRefresher{err: apperr.Authorization("fake.Refresh", apperr.ErrRefreshRejected)}
	m := tokens.NewManager(s, r)

	calls := 0
	err := m.Do(context.Background(), identity, func(context.Context, *oauth2.Token) error {
		calls++
		return unauthorized()
	})
	require.ErrorIs(t, err, apperr.ErrRefreshRejected)
	require.Equal(t, 1, calls)
	require.Equal(t, 0, s.Upserts())
}

func TestConcurrentAuthFailuresShareOneRefresh(t *testing.T) {
	s := seeded()
	r := &fakeRefresher{release: make(chan struct{})}
	m := tokens.NewManager(s, r)
	stale := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh"}

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan *oauth2.Token, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.HandleAuthFailure(context.Background(), identity, stale)
			if err == nil {
				results <- tok
			}
		}()
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(r.release)
	wg.Wait()
	close(results)

	for tok := range results {
		require.Equal(t, "fresh", tok.AccessToken)
	}
	require.EqualValues(t, 1, r.calls.Load())
	require.Equal(t, 1, s.Upserts())
}

func TestSharedRefreshSurvivesCancelledCaller(t *testing.T) {
	s := seeded()
	r := &fakeRefresher{release: make(chan struct{})}
	m := tokens.NewManager(s, r)
	stale := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh"}

	cancelled, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := m.HandleAuthFailure(cancelled, identity, stale)
		first <- err
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan *oauth2.Token, 1)
	go func() {
		tok, err := m.HandleAuthFailure(context.Background(), identity, stale)
		if err != nil {
			tok = nil
		}
		second <- tok
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(r.release)

	require.NoError(t, <-first)
	tok := <-second
	require.NotNil(t, tok)
	require.Equal(t, "fresh", tok.AccessToken)
	require.EqualValues(t, 1, r.calls.Load())
	require.Equal(t, 1, s.Upserts())
}

func TestSave(t *testing.T) {
	s := storefake.New()
	m := tokens.NewManager(s, &fakeRefresher{})

	require.NoError(t, m.Save(context.Background(), identity, &oauth2.Token{AccessToken: "a", Expiry: time.Now()}))
	err := m.Save(context.Background(), "", &oauth2.Token{AccessToken: "a"})
	require.ErrorIs(t, err, apperr.ErrEmptyIdentity)
	require.Equal(t, 1, s.Len())
}
