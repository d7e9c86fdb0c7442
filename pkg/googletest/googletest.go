// Package googletest runs a fake of the Google OAuth2 token endpoint, the userinfo API and the
// Calendar v3 events API for tests.
package googletest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	email         string
	codes         map[string]string // code -> refresh token issued with it
	refreshTokens map[string]bool
	accessTokens  map[string]bool
	events        []*calendar.Event
	apiStatus     int
	issued        int

	exchanges int
	refreshes int
	apiCalls  int
	lists     int
	inserts   int
	deletes   int
	lastQuery url.Values
}

// NewServer starts a fake and stops it when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		email:         "user@example.com",
		codes:         make(map[string]string),
		refreshTokens: make(map[string]bool),
		accessTokens:  make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.route))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   s.URL + "/o/oauth2/auth",
		TokenURL:  s.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// APIOptions points a google.golang.org/api service at the fake.
func (s *Server) APIOptions() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(s.URL + "/")}
}

func (s *Server) SetEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
}

// AddCode registers an authorization code; exchanging it issues refreshToken.
func (s *Server) AddCode(code, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = refreshToken
	s.refreshTokens[refreshToken] = true
}

func (s *Server) AddRefreshToken(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[refreshToken] = true
}

func (s *Server) AllowAccessToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[accessToken] = true
}

// ExpireAccessTokens makes every issued access token invalid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]bool)
}

// SetAPIStatus forces every calendar and userinfo call to answer with status. Zero resets.
func (s *Server) SetAPIStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiStatus = status
}

// AddEvent stores an event as-is, in the order given.
func (s *Server) AddEvent(e *calendar.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *Server) Events() []*calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*calendar.Event(nil), s.events...)
}

func (s *Server) Exchanges() int { return s.count(&s.exchanges) }
func (s *Server) Refreshes() int { return s.count(&s.refreshes) }
func (s *Server) APICalls() int  { return s.count(&s.apiCalls) }
func (s *Server) Lists() int     { return s.count(&s.lists) }
func (s *Server) Inserts() int   { return s.count(&s.inserts) }
func (s *Server) Deletes() int   { return s.count(&s.deletes) }

func (s *Server) LastListQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Server) count(n *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *n
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/token":
		s.token(w, r)
	case r.URL.Path == "/oauth2/v2/userinfo":
		s.userinfo(w, r)
	case strings.HasPrefix(r.URL.Path, "/calendars/"):
		s.calendar(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]any{"token_type": "Bearer", "expires_in": 3600}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.exchanges++
		refresh, ok := s.codes[r.PostForm.Get("code")]
		if !ok {
			tokenError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		delete(s.codes, r.PostForm.Get("code"))
		resp["refresh_token"] = refresh
	case "refresh_token":
		s.refreshes++
		if !s.refreshTokens[r.PostForm.Get("refresh_token")] {
			tokenError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	default:
		tokenError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	s.issued++
	access := fmt.Sprintf("access-%d", s.issued)
	s.accessTokens[access] = true
	resp["access_token"] = access
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) userinfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": "1", "email": s.email, "verified_email": true})
}

// calendar serves /calendars/{calendarId}/events[/{eventId}].
func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/calendars/"), "/")
	if len(parts) < 2 || parts[1] != "events" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCalls++
	if !s.authorized(w, r) {
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		s.lists++
		s.lastQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, &calendar.Events{Kind: "calendar#events", Items: s.events})
	case len(parts) == 2 && r.Method == http.MethodPost:
		s.inserts++
		var e calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			apiError(w, http.StatusBadRequest, "Bad Request")
			return
		}
		e.Id = fmt.Sprintf("evt%d", len(s.events)+1)
		s.events = append(s.events, &e)
		writeJSON(w, http.StatusOK, &e)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		s.deletes++
		for i, e := range s.events {
			if e.Id == parts[2] {
				s.events = append(s.events[:i], s.events[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		apiError(w, http.StatusNotFound, "Not Found")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// authorized must be called with s.mu held.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.apiStatus != 0 {
		apiError(w, s.apiStatus, http.StatusText(s.apiStatus))
		return false
	}
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if bearer == "" || !s.accessTokens[bearer] {
		apiError(w, http.StatusUnauthorized, "Invalid Credentials")
		return false
	}
	return true
}

func tokenError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
