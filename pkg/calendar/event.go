package calendar

import (
	"fmt"
	"time"

	"calendarservice/pkg/apperr"

	gcal "google.golang.org/api/calendar/v3"
)

// EventTime is either a timed instant (DateTime, RFC 3339) or an all-day Date (yyyy-mm-dd).
// TimeZone is passed through untouched.
type EventTime struct {
	DateTime string
	Date     string
	TimeZone string
}

// At builds a timed EventTime.
func At(t time.Time, timeZone string) EventTime {
	return EventTime{DateTime: t.Format(time.RFC3339), TimeZone: timeZone}
}

func (t EventTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

// Time is the instant used for ordering. All-day dates sort at midnight UTC.
func (t EventTime) Time() time.Time {
	if t.DateTime != "" {
		if ts, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return ts
		}
	}
	if ts, err := time.Parse(time.DateOnly, t.Date); err == nil {
		return ts
	}
	return time.Time{}
}

func (t EventTime) String() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

type Event struct {
	ID          string
	Summary     string
	Location    string
	Description string
	Start       EventTime
	End         EventTime
	Attendees   []string
	HTMLLink    string
}

// EventDraft is an event not yet created.
type EventDraft struct {
	Summary     string
	Location    string
	Description string
	Start       EventTime
	End         EventTime
	Attendees   []string
}

func (d EventDraft) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", apperr.ErrInvalidEvent)
	}
	if d.End.Time().Before(d.Start.Time()) {
		return fmt.Errorf("%w: end %s is before start %s", apperr.ErrInvalidEvent, d.End, d.Start)
	}
	return nil
}

// DemoDraft is the fixed event created by /create-event: tomorrow 09:00-12:00 India time.
func DemoDraft(now time.Time) EventDraft {
	ist := time.FixedZone("IST", 5*60*60+30*60)
	day := now.In(ist).AddDate(0, 0, 1)
	start := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, ist)
	return EventDraft{
		Summary:     "Demo Event",
		Location:    "Somewhere nice",
		Description: "Created by the calendar service.",
		Start:       At(start, "Asia/Kolkata"),
		End:         At(start.Add(3*time.Hour), "Asia/Kolkata"),
		Attendees:   []string{"example@example.com"},
	}
}

func (d EventDraft) toAPI() *gcal.Event {
	e := &gcal.Event{
		Summary:     d.Summary,
		Location:    d.Location,
		Description: d.Description,
		Start:       d.Start.toAPI(),
		End:         d.End.toAPI(),
	}
	for _, email := range d.Attendees {
		e.Attendees = append(e.Attendees, &gcal.EventAttendee{Email: email})
	}
	return e
}

func (t EventTime) toAPI() *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.DateTime, Date: t.Date, TimeZone: t.TimeZone}
}

func fromAPI(e *gcal.Event) Event {
	ev := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Location:    e.Location,
		Description: e.Description,
		Start:       timeFromAPI(e.Start),
		End:         timeFromAPI(e.End),
		HTMLLink:    e.HtmlLink,
	}
	for _, a := range e.Attendees {
		if a != nil && a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev
}

func timeFromAPI(t *gcal.EventDateTime) EventTime {
	if t == nil {
		return EventTime{}
	}
	return EventTime{DateTime: t.DateTime, Date: t.Date, TimeZone: t.TimeZone}
}
