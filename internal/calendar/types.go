package calendar

import (
	"errors"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// ErrNotFound is returned when the event does not exist or was deleted.
var ErrNotFound = errors.New("event not found")

// EventInput describes an event to create.
type EventInput struct {
	Title      string
	Start      time.Time
	End        time.Time
	Attendees  []string
	EnableMeet bool
}

// EventPatch describes changes to an existing event. Zero fields are left
// unchanged.
type EventPatch struct {
	Title string
	Start time.Time
	End   time.Time
}

// Event is the reduced view of a calendar event.
type Event struct {
	ID       string
	Title    string
	Start    time.Time
	End      time.Time
	MeetLink string
	HTMLLink string
	Status   string
}

func toEvent(e *calendar.Event) Event {
	if e == nil {
		return Event{}
	}
	ev := Event{
		ID:       e.Id,
		Title:    e.Summary,
		Start:    parseEventTime(e.Start),
		End:      parseEventTime(e.End),
		HTMLLink: e.HtmlLink,
		Status:   e.Status,
	}
	if e.HangoutLink != "" {
		ev.MeetLink = e.HangoutLink
	} else if e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				ev.MeetLink = ep.Uri
				break
			}
		}
	}
	return ev
}

// parseEventTime returns the instant in UTC. All-day events start at
// midnight UTC of their date.
func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.UTC()
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse(time.DateOnly, dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

func eventDateTime(t time.Time, tz string) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.UTC().Format(time.RFC3339),
		TimeZone: tz,
	}
}
