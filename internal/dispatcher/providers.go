package dispatcher

import (
	"context"
	"time"

	"github.com/teemow/meetmate/internal/calendar"
	"github.com/teemow/meetmate/internal/credentials"
	"github.com/teemow/meetmate/internal/gmail"
	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/model"
)

// CalendarService is the calendar provider a command runs against.
type CalendarService interface {
	CreateEvent(ctx context.Context, in calendar.EventInput) (*calendar.Event, error)
	ListEvents(ctx context.Context, since time.Time, max int64) ([]calendar.Event, error)
	UpdateEvent(ctx context.Context, eventID string, patch calendar.EventPatch) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Mailer sends mail as the user.
type Mailer interface {
	Send(ctx context.Context, msg gmail.Message) (string, error)
}

// AppointmentStore is the local appointment mirror.
type AppointmentStore interface {
	SaveAppointment(ctx context.Context, appt *model.Appointment) error
	UpdateAppointment(ctx context.Context, userID, eventID string, change model.AppointmentChange) (bool, error)
	DeleteAppointmentByEvent(ctx context.Context, userID, eventID string) (bool, error)
}

// Providers are the user-scoped clients for one command.
type Providers struct {
	Calendar CalendarService
	Mail     Mailer
}

// ProviderFactory builds Providers authorized by a session.
type ProviderFactory interface {
	Providers(ctx context.Context, session *credentials.Session) (*Providers, error)
}

// GoogleFactory builds Google Calendar and Gmail clients.
type GoogleFactory struct {
	CalendarID string
	TimeZone   string
	Metrics    *instrumentation.Metrics

	// Endpoint overrides, used in tests.
	CalendarEndpoint string
	GmailEndpoint    string
}

// Providers implements ProviderFactory.
func (f *GoogleFactory) Providers(ctx context.Context, session *credentials.Session) (*Providers, error) {
	opts := []calendar.Option{calendar.WithMetrics(f.Metrics)}
	if f.CalendarID != "" {
		opts = append(opts, calendar.WithCalendarID(f.CalendarID))
	}
	if f.TimeZone != "" {
		opts = append(opts, calendar.WithTimeZone(f.TimeZone))
	}
	if f.CalendarEndpoint != "" {
		opts = append(opts, calendar.WithEndpoint(f.CalendarEndpoint))
	}

	cal, err := calendar.NewClient(ctx, session.HTTPClient(), opts...)
	if err != nil {
		return nil, err
	}
	mail, err := gmail.NewClient(ctx, session.HTTPClient(), f.GmailEndpoint, f.Metrics)
	if err != nil {
		return nil, err
	}
	return &Providers{Calendar: cal, Mail: mail}, nil
}
