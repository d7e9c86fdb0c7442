package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"calendarservice/pkg/apperr"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const PrimaryCalendar = "primary"

// ClientFactory returns an HTTP client that signs requests with tok.
type ClientFactory interface {
	Client(ctx context.Context, tok *oauth2.Token) *http.Client
}

// Gateway issues Calendar v3 calls on behalf of the credential passed to each method.
type Gateway struct {
	clients ClientFactory
	opts    []option.ClientOption
	now     func() time.Time
}

func NewGateway(clients ClientFactory, opts ...option.ClientOption) *Gateway {
	return &Gateway{clients: clients, opts: opts, now: time.Now}
}

// ListUpcoming returns events starting from now, recurring events expanded, earliest first.
func (g *Gateway) ListUpcoming(ctx context.Context, tok *oauth2.Token, calendarID string) ([]Event, error) {
	const op = "calendar.ListUpcoming"
	svc, err := g.service(ctx, op, tok)
	if err != nil {
		return nil, err
	}

	res, err := svc.Events.List(calendarOrPrimary(calendarID)).
		Context(ctx).
		TimeMin(g.now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, classify(op, err)
	}

	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, fromAPI(item))
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Time().Before(events[j].Start.Time())
	})
	return events, nil
}

// Create inserts draft and returns the event as stored by the provider.
func (g *Gateway) Create(ctx context.Context, tok *oauth2.Token, calendarID string, draft EventDraft) (Event, error) {
	const op = "calendar.Create"
	if err := draft.Validate(); err != nil {
		return Event{}, apperr.ClientInput(op, err)
	}
	svc, err := g.service(ctx, op, tok)
	if err != nil {
		return Event{}, err
	}

	created, err := svc.Events.Insert(calendarOrPrimary(calendarID), draft.toAPI()).Context(ctx).Do()
	if err != nil {
		return Event{}, classify(op, err)
	}
	return fromAPI(created), nil
}

// Delete removes an event. An empty eventID fails before any request is made.
func (g *Gateway) Delete(ctx context.Context, tok *oauth2.Token, calendarID, eventID string) error {
	const op = "calendar.Delete"
	if eventID == "" {
		return apperr.ClientInput(op, apperr.ErrMissingEventID)
	}
	svc, err := g.service(ctx, op, tok)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(calendarOrPrimary(calendarID), eventID).Context(ctx).Do(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (g *Gateway) service(ctx context.Context, op string, tok *oauth2.Token) (*gcal.Service, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, apperr.Authorization(op, apperr.ErrNoAccessToken)
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(g.clients.Client(ctx, tok))}, g.opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.Upstream(op, fmt.Errorf("unable to create calendar service: %w", err))
	}
	return svc, nil
}

func calendarOrPrimary(id string) string {
	if id == "" {
		return PrimaryCalendar
	}
	return id
}

// classify maps the provider's status codes onto error kinds.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return apperr.Upstream(op, err)
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return apperr.Authorization(op, err)
	case http.StatusBadRequest:
		return apperr.ClientInput(op, err)
	case http.StatusNotFound, http.StatusGone:
		return apperr.NotFound(op, fmt.Errorf("%w: %v", apperr.ErrEventNotFound, err))
	default:
		return apperr.Upstream(op, err)
	}
}
