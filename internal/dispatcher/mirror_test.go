package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetmate/internal/calendar"
	"github.com/teemow/meetmate/internal/credentials"
	"github.com/teemow/meetmate/internal/model"
	"github.com/teemow/meetmate/internal/reminder"
	"github.com/teemow/meetmate/internal/store"
)

type countingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *countingNotifier) Send(_ context.Context, _, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

// sweepingStore runs a reminder sweep right before each mirror update
// reaches the database.
type sweepingStore struct {
	*store.SQLStore
	t     *testing.T
	sched *reminder.Scheduler
	sent  int
}

func (s *sweepingStore) UpdateAppointment(ctx context.Context, userID, eventID string, change model.AppointmentChange) (bool, error) {
	stats, err := s.sched.RunTick(ctx)
	require.NoError(s.t, err)
	s.sent += stats.Sent
	return s.SQLStore.UpdateAppointment(ctx, userID, eventID, change)
}

func TestMirrorUpdateKeepsConcurrentReminderClaim(t *testing.T) {
	start := testNow.Add(23 * time.Hour)

	tests := []struct {
		name      string
		args      map[string]any
		wantTitle string
	}{
		{
			name:      "title only",
			args:      map[string]any{"event_id": "evt-1", "title": "Dentist (renamed)"},
			wantTitle: "Dentist (renamed)",
		},
		{
			name:      "title with unchanged start",
			args:      map[string]any{"event_id": "evt-1", "title": "Dentist (renamed)", "start": start.Format(time.RFC3339)},
			wantTitle: "Dentist (renamed)",
		},
		{
			name:      "end only",
			args:      map[string]any{"event_id": "evt-1", "end": start.Add(2 * time.Hour).Format(time.RFC3339)},
			wantTitle: "Dentist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db, err := store.Open(ctx, "sqlite://:memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			require.NoError(t, db.SaveAppointment(ctx, &model.Appointment{
				EventID: "evt-1", UserID: "u1", Title: "Dentist", Start: start, End: start.Add(time.Hour),
			}))

			notifier := &countingNotifier{}
			sched := reminder.New(db, notifier, reminder.WithClock(func() time.Time { return testNow }))
			wrapped := &sweepingStore{SQLStore: db, t: t, sched: sched}

			cal := newFakeCalendar()
			cal.events["evt-1"] = calendar.Event{ID: "evt-1", Title: "Dentist", Start: start, End: start.Add(time.Hour)}
			d := New(wrapped, staticFactory{providers: &Providers{Calendar: cal, Mail: &fakeMailer{}}},
				WithClock(func() time.Time { return testNow }))

			raw, err := json.Marshal(tt.args)
			require.NoError(t, err)
			res := d.Execute(ctx, OpUpdateAppointment, string(raw), "u1", &credentials.Session{UserID: "u1"})
			require.False(t, res.IsError(), res.Message)
			require.Equal(t, 1, wrapped.sent, "the sweep during the update sends the 24h reminder")

			stats, err := sched.RunTick(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Sent)
			assert.Equal(t, 1, notifier.count())

			appt, err := db.GetAppointmentByEvent(ctx, "u1", "evt-1")
			require.NoError(t, err)
			require.NotNil(t, appt)
			assert.Equal(t, tt.wantTitle, appt.Title)
			assert.True(t, appt.Reminders.Sent24h)
		})
	}
}
