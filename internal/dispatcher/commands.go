package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/meetmate/internal/calendar"
	"github.com/teemow/meetmate/internal/gmail"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// Operation names.
const (
	OpCreateAppointment     = "create_appointment"
	OpListAppointments      = "list_appointments"
	OpUpdateAppointment     = "update_appointment"
	OpDeleteAppointment     = "delete_appointment"
	OpDeleteAllAppointments = "delete_all_appointments"
	OpSendEmail             = "send_email"
)

const (
	// DefaultDuration is the length of an appointment created or moved
	// without an explicit end.
	DefaultDuration = time.Hour

	listLimit      = 10
	deleteAllLimit = 50
)

type command struct {
	tool mcp.Tool
	run  func(ctx context.Context, e *env, arguments string) (any, error)
}

// commandTable is the closed set of operations the agent may request.
var commandTable = map[string]command{
	OpCreateAppointment: {
		tool: mcp.NewTool(OpCreateAppointment,
			mcp.WithDescription("Create a calendar appointment. Attendees receive an invitation email."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short title of the appointment")),
			mcp.WithString("start", mcp.Required(), mcp.Description("Start time, RFC3339 (e.g. 2026-05-04T15:00:00-05:00). Without an offset the user's time zone is assumed.")),
			mcp.WithString("end", mcp.Description("End time in the same format. Defaults to one hour after start.")),
			mcp.WithArray("attendees", mcp.Description("Email addresses to invite"), mcp.WithStringItems()),
			mcp.WithBoolean("enable_meet", mcp.Description("Attach a Google Meet video link")),
		),
		run: handler(OpCreateAppointment, createAppointment),
	},
	OpListAppointments: {
		tool: mcp.NewTool(OpListAppointments,
			mcp.WithDescription("List up to 10 upcoming appointments with their ids, titles and start times."),
			mcp.WithString("time_min", mcp.Description("Only list appointments starting at or after this time. Defaults to now.")),
		),
		run: handler(OpListAppointments, listAppointments),
	},
	OpUpdateAppointment: {
		tool: mcp.NewTool(OpUpdateAppointment,
			mcp.WithDescription("Change the title or time of an appointment. Moving the start without an end keeps a one hour duration."),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("Event id as returned by list_appointments")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("start", mcp.Description("New start time, RFC3339")),
			mcp.WithString("end", mcp.Description("New end time, RFC3339")),
		),
		run: handler(OpUpdateAppointment, updateAppointment),
	},
	OpDeleteAppointment: {
		tool: mcp.NewTool(OpDeleteAppointment,
			mcp.WithDescription("Cancel an appointment. Cancelling one that is already gone succeeds."),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("Event id as returned by list_appointments")),
		),
		run: handler(OpDeleteAppointment, deleteAppointment),
	},
	OpDeleteAllAppointments: {
		tool: mcp.NewTool(OpDeleteAllAppointments,
			mcp.WithDescription("Cancel every upcoming appointment (at most 50 per call). Only use after the user explicitly confirmed."),
			mcp.WithString("time_min", mcp.Description("Only cancel appointments starting at or after this time. Defaults to now.")),
		),
		run: handler(OpDeleteAllAppointments, deleteAllAppointments),
	},
	OpSendEmail: {
		tool: mcp.NewTool(OpSendEmail,
			mcp.WithDescription("Send a plain-text email from the user's Gmail account."),
			mcp.WithArray("to", mcp.Required(), mcp.Description("Recipient email addresses"), mcp.WithStringItems()),
			mcp.WithString("subject", mcp.Required(), mcp.Description("Subject line")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Message body")),
		),
		run: handler(OpSendEmail, sendEmail),
	},
}

// toolOrder fixes the order tools are offered in.
var toolOrder = []string{
	OpCreateAppointment,
	OpListAppointments,
	OpUpdateAppointment,
	OpDeleteAppointment,
	OpDeleteAllAppointments,
	OpSendEmail,
}

// Tools returns the schema of every operation.
func Tools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(toolOrder))
	for _, name := range toolOrder {
		tools = append(tools, commandTable[name].tool)
	}
	return tools
}

// handler decodes the JSON arguments into A before calling fn.
func handler[A any](op string, fn func(ctx context.Context, e *env, args A) (any, error)) func(context.Context, *env, string) (any, error) {
	return func(ctx context.Context, e *env, arguments string) (any, error) {
		var args A
		if strings.TrimSpace(arguments) != "" {
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return nil, &model.AgentProtocolError{Op: op, Err: fmt.Errorf("arguments are not valid JSON: %w", err)}
			}
		}
		return fn(ctx, e, args)
	}
}

type createArgs struct {
	Title      string   `json:"title"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Attendees  []string `json:"attendees"`
	EnableMeet bool     `json:"enable_meet"`
}

type appointmentView struct {
	EventID   string   `json:"event_id"`
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	MeetLink  string   `json:"meet_link,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

func createAppointment(ctx context.Context, e *env, args createArgs) (any, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return nil, model.Invalid(e.op, "title is required")
	}
	start, err := e.d.parseTime(e.op, "start", args.Start)
	if err != nil {
		return nil, err
	}
	end := start.Add(DefaultDuration)
	if args.End != "" {
		if end, err = e.d.parseTime(e.op, "end", args.End); err != nil {
			return nil, err
		}
		if !end.After(start) {
			return nil, model.Invalid(e.op, "end must be after start")
		}
	}

	ev, err := e.providers.Calendar.CreateEvent(ctx, calendar.EventInput{
		Title:      title,
		Start:      start,
		End:        end,
		Attendees:  args.Attendees,
		EnableMeet: args.EnableMeet,
	})
	if err != nil {
		return nil, err
	}

	appt := &model.Appointment{
		EventID: ev.ID,
		UserID:  e.userID,
		Title:   title,
		Start:   start,
		End:     end,
	}
	if err := e.d.store.SaveAppointment(ctx, appt); err != nil {
		e.logger().ErrorContext(ctx, "event created but not tracked for reminders", logging.EventID(ev.ID), logging.Err(err))
		return nil, fmt.Errorf("event %s was created but reminders could not be scheduled: %w", ev.ID, err)
	}

	return appointmentView{
		EventID:   ev.ID,
		Title:     title,
		Start:     e.d.formatTime(start),
		End:       e.d.formatTime(end),
		MeetLink:  ev.MeetLink,
		Attendees: args.Attendees,
	}, nil
}

type listArgs struct {
	TimeMin string `json:"time_min"`
}

type listItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
}

func listAppointments(ctx context.Context, e *env, args listArgs) (any, error) {
	since, err := e.d.timeMin(e.op, args.TimeMin)
	if err != nil {
		return nil, err
	}
	events, err := e.providers.Calendar.ListEvents(ctx, since, listLimit)
	if err != nil {
		return nil, err
	}

	items := make([]listItem, 0, len(events))
	for _, ev := range events {
		items = append(items, listItem{ID: ev.ID, Title: ev.Title, Start: e.d.formatTime(ev.Start)})
	}
	return items, nil
}

type updateArgs struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func updateAppointment(ctx context.Context, e *env, args updateArgs) (any, error) {
	if args.EventID == "" {
		return nil, model.Invalid(e.op, "event_id is required")
	}
	title := strings.TrimSpace(args.Title)
	if title == "" && args.Start == "" && args.End == "" {
		return nil, model.Invalid(e.op, "nothing to change: give a title, start or end")
	}

	var patch calendar.EventPatch
	patch.Title = title
	if args.Start != "" {
		start, err := e.d.parseTime(e.op, "start", args.Start)
		if err != nil {
			return nil, err
		}
		patch.Start = start
		patch.End = start.Add(DefaultDuration)
	}
	if args.End != "" {
		end, err := e.d.parseTime(e.op, "end", args.End)
		if err != nil {
			return nil, err
		}
		if !patch.Start.IsZero() && !end.After(patch.Start) {
			return nil, model.Invalid(e.op, "end must be after start")
		}
		patch.End = end
	}

	ev, err := e.providers.Calendar.UpdateEvent(ctx, args.EventID, patch)
	if errors.Is(err, calendar.ErrNotFound) {
		if _, derr := e.d.store.DeleteAppointmentByEvent(ctx, e.userID, args.EventID); derr != nil {
			e.logger().WarnContext(ctx, "failed to drop vanished appointment", logging.EventID(args.EventID), logging.Err(derr))
		}
		return nil, &model.ExternalProviderError{
			Op:       e.op,
			Provider: "calendar",
			Err:      fmt.Errorf("event %s no longer exists", args.EventID),
		}
	}
	if err != nil {
		return nil, err
	}

	if err := e.mirrorUpdate(ctx, args.EventID, patch); err != nil {
		return nil, err
	}

	return appointmentView{
		EventID: ev.ID,
		Title:   ev.Title,
		Start:   e.d.formatTime(ev.Start),
		End:     e.d.formatTime(ev.End),
	}, nil
}

// mirrorUpdate applies patch to the local row. A missing row is fine: the
// event may have been created outside the assistant.
func (e *env) mirrorUpdate(ctx context.Context, eventID string, patch calendar.EventPatch) error {
	_, err := e.d.store.UpdateAppointment(ctx, e.userID, eventID, model.AppointmentChange{
		Title: patch.Title,
		Start: patch.Start,
		End:   patch.End,
	})
	return err
}

type deleteArgs struct {
	EventID string `json:"event_id"`
}

type deleteView struct {
	EventID        string `json:"event_id"`
	AlreadyDeleted bool   `json:"already_deleted,omitempty"`
}

func deleteAppointment(ctx context.Context, e *env, args deleteArgs) (any, error) {
	if args.EventID == "" {
		return nil, model.Invalid(e.op, "event_id is required")
	}
	gone, err := e.deleteEvent(ctx, args.EventID)
	if err != nil {
		return nil, err
	}
	return deleteView{EventID: args.EventID, AlreadyDeleted: gone}, nil
}

// deleteEvent removes the event and its local row. gone reports that the
// provider no longer had it, which counts as success.
func (e *env) deleteEvent(ctx context.Context, eventID string) (gone bool, err error) {
	err = e.providers.Calendar.DeleteEvent(ctx, eventID)
	switch {
	case errors.Is(err, calendar.ErrNotFound):
		gone = true
	case err != nil:
		return false, err
	}
	if _, err := e.d.store.DeleteAppointmentByEvent(ctx, e.userID, eventID); err != nil {
		return gone, err
	}
	return gone, nil
}

type deleteAllView struct {
	Deleted  int            `json:"deleted"`
	Failed   int            `json:"failed,omitempty"`
	Failures []batchFailure `json:"failures,omitempty"`
}

type batchFailure struct {
	EventID string `json:"event_id"`
	Error   string `json:"error"`
}

// deleteAllAppointments attempts every listed event. Individual failures are
// reported in the result; the call fails only when nothing could be deleted.
func deleteAllAppointments(ctx context.Context, e *env, args listArgs) (any, error) {
	since, err := e.d.timeMin(e.op, args.TimeMin)
	if err != nil {
		return nil, err
	}
	events, err := e.providers.Calendar.ListEvents(ctx, since, deleteAllLimit)
	if err != nil {
		return nil, err
	}

	view := deleteAllView{}
	var firstErr error
	for _, ev := range events {
		if _, err := e.deleteEvent(ctx, ev.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			view.Failed++
			view.Failures = append(view.Failures, batchFailure{EventID: ev.ID, Error: err.Error()})
			continue
		}
		view.Deleted++
	}
	if view.Deleted == 0 && firstErr != nil {
		return nil, fmt.Errorf("deleted 0 of %d appointments: %w", len(events), firstErr)
	}
	if view.Failed > 0 {
		e.logger().WarnContext(ctx, "some appointments could not be deleted", "deleted", view.Deleted, "failed", view.Failed)
	}
	return view, nil
}

type emailArgs struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

type emailView struct {
	MessageID string `json:"message_id"`
}

func sendEmail(ctx context.Context, e *env, args emailArgs) (any, error) {
	if len(args.To) == 0 {
		return nil, model.Invalid(e.op, "at least one recipient is required")
	}
	id, err := e.providers.Mail.Send(ctx, gmail.Message{To: args.To, Subject: args.Subject, Body: args.Body})
	if err != nil {
		return nil, err
	}
	return emailView{MessageID: id}, nil
}
