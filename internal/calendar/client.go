package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/model"
)

// Client calls Google Calendar with one user's authorized HTTP client.
type Client struct {
	svc        *calendar.Service
	calendarID string
	timeZone   string
	metrics    *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	calendarID string
	timeZone   string
	endpoint   string
	metrics    *instrumentation.Metrics
}

// WithCalendarID selects the calendar (default "primary").
func WithCalendarID(id string) Option {
	return func(o *clientOptions) { o.calendarID = id }
}

// WithTimeZone sets the IANA zone attached to event times for display.
func WithTimeZone(tz string) Option {
	return func(o *clientOptions) { o.timeZone = tz }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) Option {
	return func(o *clientOptions) { o.endpoint = url }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewClient creates a Client that authorizes through httpClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	o := clientOptions{calendarID: "primary", timeZone: "UTC", metrics: &instrumentation.Metrics{}}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := calendar.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Client{
		svc:        svc,
		calendarID: o.calendarID,
		timeZone:   o.timeZone,
		metrics:    o.metrics,
	}, nil
}

// CreateEvent inserts an event and notifies attendees. With EnableMeet a
// Google Meet conference is requested.
func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	event := &calendar.Event{
		Summary: in.Title,
		Start:   eventDateTime(in.Start, c.timeZone),
		End:     eventDateTime(in.End, c.timeZone),
	}
	for _, email := range in.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	call := c.svc.Events.Insert(c.calendarID, event).SendUpdates("all")
	if in.EnableMeet {
		event.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	var created *calendar.Event
	err := c.observe(ctx, "insert", func(ctx context.Context) (err error) {
		created, err = call.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	ev := toEvent(created)
	return &ev, nil
}

// ListEvents returns up to max upcoming single events starting at or
// after since, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, since time.Time, max int64) ([]Event, error) {
	call := c.svc.Events.List(c.calendarID).
		TimeMin(since.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(max)

	var list *calendar.Events
	err := c.observe(ctx, "list", func(ctx context.Context) (err error) {
		list, err = call.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

// GetEvent fetches a single event.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	raw, err := c.get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ev := toEvent(raw)
	return &ev, nil
}

func (c *Client) get(ctx context.Context, eventID string) (*calendar.Event, error) {
	var raw *calendar.Event
	err := c.observe(ctx, "get", func(ctx context.Context) (err error) {
		raw, err = c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
		return err
	})
	return raw, err
}

// UpdateEvent applies patch to an existing event and notifies attendees.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (*Event, error) {
	existing, err := c.get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if existing.Status == "cancelled" {
		return nil, c.wrap("update", ErrNotFound)
	}

	if patch.Title != "" {
		existing.Summary = patch.Title
	}
	if !patch.Start.IsZero() {
		existing.Start = eventDateTime(patch.Start, c.timeZone)
	}
	if !patch.End.IsZero() {
		existing.End = eventDateTime(patch.End, c.timeZone)
	}

	var updated *calendar.Event
	err = c.observe(ctx, "update", func(ctx context.Context) (err error) {
		updated, err = c.svc.Events.Update(c.calendarID, eventID, existing).SendUpdates("all").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	ev := toEvent(updated)
	return &ev, nil
}

// DeleteEvent removes an event and notifies attendees. Deleting an event
// that is already gone returns ErrNotFound.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	return c.observe(ctx, "delete", func(ctx context.Context) error {
		return c.svc.Events.Delete(c.calendarID, eventID).SendUpdates("all").Context(ctx).Do()
	})
}

func (c *Client) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op)
	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(start))
	instrumentation.EndSpan(span, err)

	if err != nil {
		return c.wrap(op, err)
	}
	return nil
}

func (c *Client) wrap(op string, err error) error {
	if isNotFound(err) && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if isUnauthorized(err) {
		return &model.AuthExpiredError{Op: "calendar." + op, Err: err}
	}
	return &model.ExternalProviderError{Op: "calendar." + op, Provider: instrumentation.ServiceCalendar, Err: err}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}

func isUnauthorized(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}
