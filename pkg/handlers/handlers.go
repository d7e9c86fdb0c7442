package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendarservice/pkg/apperr"
	"calendarservice/pkg/calendar"
	"calendarservice/pkg/tokens"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	stateKey    = "oauth_state"
	identityKey = "identity"
)

// Authenticator is the provider side of the OAuth flow.
type Authenticator interface {
	AuthURL(state string, scopes []string, promptForConsent bool) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	ResolveIdentity(ctx context.Context, tok *oauth2.Token) (string, error)
}

// Credentials loads, saves and refreshes stored credentials around authorized calls.
type Credentials interface {
	Save(ctx context.Context, identity string, tok *oauth2.Token) error
	Do(ctx context.Context, identity string, call tokens.Call) error
}

// Calendar is the subset of the calendar gateway the routes use.
type Calendar interface {
	ListUpcoming(ctx context.Context, tok *oauth2.Token, calendarID string) ([]calendar.Event, error)
	Create(ctx context.Context, tok *oauth2.Token, calendarID string, draft calendar.EventDraft) (calendar.Event, error)
	Delete(ctx context.Context, tok *oauth2.Token, calendarID, eventID string) error
}

type Options struct {
	// DefaultIdentity is used when the browser session has none.
	DefaultIdentity string
	// ResolveIdentity looks the identity up from the provider after login instead of
	// using DefaultIdentity.
	ResolveIdentity bool
	CalendarID      string
	Scopes          []string
}

type Handler struct {
	auth     Authenticator
	creds    Credentials
	calendar Calendar
	sessions *session.Store
	opts     Options
	now      func() time.Time
}

func New(auth Authenticator, creds Credentials, cal Calendar, sessions *session.Store, opts Options) *Handler {
	return &Handler{
		auth:     auth,
		creds:    creds,
		calendar: cal,
		sessions: sessions,
		opts:     opts,
		now:      time.Now,
	}
}

func (h *Handler) Register(app *fiber.App) {
	app.Get("/", h.Index)
	app.Get("/auth", h.Login)
	app.Get("/reauthenticate", h.Login)
	app.Get("/oauth2callback", h.Callback)

	app.Get("/events", h.RequireIdentity, h.ListEvents)
	app.Get("/create-event", h.RequireIdentity, h.CreateEvent)
	app.Get("/delete-event/:eventId?", h.requireEventID, h.RequireIdentity, h.DeleteEvent)
}

func (h *Handler) Index(c *fiber.Ctx) error {
	return sendHTML(c, fiber.StatusOK, indexPage())
}

// Login redirects to the provider consent screen with a fresh state token. Consent is always
// forced so the provider issues a new refresh token.
func (h *Handler) Login(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return h.fail(c, fmt.Errorf("loading session: %w", err), "Failed to start login.")
	}
	state := uuid.NewString()
	sess.Set(stateKey, state)
	if err := sess.Save(); err != nil {
		return h.fail(c, fmt.Errorf("saving session: %w", err), "Failed to start login.")
	}
	return c.Redirect(h.auth.AuthURL(state, h.opts.Scopes, true))
}

func (h *Handler) Callback(c *fiber.Ctx) error {
	ctx := c.UserContext()
	code := c.Query("code")
	if code == "" {
		return h.fail(c, apperr.ClientInput("callback", apperr.ErrMissingCode), "Authorization code not provided.")
	}

	if !h.opts.ResolveIdentity && h.opts.DefaultIdentity == "" {
		return h.fail(c, errors.New("no identity configured"), "Authentication failed.")
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		return h.fail(c, fmt.Errorf("loading session: %w", err), "Authentication failed.")
	}
	want, _ := sess.Get(stateKey).(string)
	if want == "" || c.Query("state") != want {
		return h.fail(c, apperr.ClientInput("callback", apperr.ErrInvalidState), "Invalid login state.")
	}
	// The state is single use even when the exchange below fails.
	sess.Delete(stateKey)
	if err := sess.Save(); err != nil {
		return h.fail(c, fmt.Errorf("saving session: %w", err), "Authentication failed.")
	}

	tok, err := h.auth.Exchange(ctx, code)
	if err != nil {
		return h.failWith(c, fiber.StatusInternalServerError, err, "Authentication failed.")
	}

	identity := h.opts.DefaultIdentity
	if h.opts.ResolveIdentity {
		if identity, err = h.auth.ResolveIdentity(ctx, tok); err != nil {
			return h.failWith(c, fiber.StatusInternalServerError, err, "Unable to retrieve user info.")
		}
	}
	if err := h.creds.Save(ctx, identity, tok); err != nil {
		return h.fail(c, err, "Failed to store token in the database.")
	}

	// Save released the earlier session.
	if sess, err = h.sessions.Get(c); err != nil {
		return h.fail(c, fmt.Errorf("loading session: %w", err), "Failed to save session.")
	}
	sess.Set(identityKey, identity)
	if err := sess.Save(); err != nil {
		return h.fail(c, fmt.Errorf("saving session: %w", err), "Failed to save session.")
	}
	log.Info().Str("identity", identity).Msg("login successful")
	return sendHTML(c, fiber.StatusOK, loginPage(identity))
}

func (h *Handler) ListEvents(c *fiber.Ctx) error {
	var events []calendar.Event
	err := h.creds.Do(c.UserContext(), identityOf(c), func(ctx context.Context, tok *oauth2.Token) error {
		var err error
		events, err = h.calendar.ListUpcoming(ctx, tok, h.opts.CalendarID)
		return err
	})
	if err != nil {
		return h.fail(c, err, "Failed to fetch events.")
	}
	return sendHTML(c, fiber.StatusOK, eventsPage(events))
}

func (h *Handler) CreateEvent(c *fiber.Ctx) error {
	draft, err := h.draftFromQuery(c)
	if err != nil {
		return h.fail(c, apperr.ClientInput("create-event", err), "Invalid event details.")
	}

	var created calendar.Event
	err = h.creds.Do(c.UserContext(), identityOf(c), func(ctx context.Context, tok *oauth2.Token) error {
		var err error
		created, err = h.calendar.Create(ctx, tok, h.opts.CalendarID, draft)
		return err
	})
	if err != nil {
		return h.fail(c, err, "Failed to create event.")
	}
	log.Info().Str("identity", identityOf(c)).Str("event_id", created.ID).Msg("event created")
	return sendHTML(c, fiber.StatusOK, createdPage(created))
}

func (h *Handler) DeleteEvent(c *fiber.Ctx) error {
	eventID := c.Params("eventId")
	err := h.creds.Do(c.UserContext(), identityOf(c), func(ctx context.Context, tok *oauth2.Token) error {
		return h.calendar.Delete(ctx, tok, h.opts.CalendarID, eventID)
	})
	if err != nil {
		return h.fail(c, err, "Failed to delete event.")
	}
	log.Info().Str("identity", identityOf(c)).Str("event_id", eventID).Msg("event deleted")
	return sendHTML(c, fiber.StatusOK, deletedPage())
}

// draftFromQuery starts from the demo event and applies any query overrides.
func (h *Handler) draftFromQuery(c *fiber.Ctx) (calendar.EventDraft, error) {
	draft := calendar.DemoDraft(h.now())
	if v := c.Query("summary"); v != "" {
		draft.Summary = v
	}
	if v := c.Query("location"); v != "" {
		draft.Location = v
	}
	if v := c.Query("description"); v != "" {
		draft.Description = v
	}
	if v := c.Query("guest"); v != "" {
		draft.Attendees = []string{v}
	}

	tz := c.Query("tz", draft.Start.TimeZone)
	for _, f := range []struct {
		param string
		dst   *calendar.EventTime
	}{{"start", &draft.Start}, {"end", &draft.End}} {
		v := c.Query(f.param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return draft, fmt.Errorf("%w: %s must be RFC 3339", apperr.ErrInvalidEvent, f.param)
		}
		*f.dst = calendar.At(t, tz)
	}
	return draft, draft.Validate()
}
