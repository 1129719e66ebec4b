package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// DefaultInterval is the period between sweeps.
const DefaultInterval = 5 * time.Minute

// ErrSweepInProgress is returned by RunTick while another sweep runs.
var ErrSweepInProgress = errors.New("reminder sweep already in progress")

// Store is the appointment storage the scheduler reads and flags.
type Store interface {
	ListUpcomingAppointments(ctx context.Context, now time.Time) ([]model.Appointment, error)
	SetReminderFlags(ctx context.Context, id string, from, to model.ReminderFlags) (bool, error)
}

// Notifier delivers a text to a user.
type Notifier interface {
	Send(ctx context.Context, userID, text string) error
}

// Stats summarizes one sweep.
type Stats struct {
	Considered int
	Sent       int
	Failed     int
	Contended  int
}

// Scheduler sends tiered reminders for upcoming appointments.
type Scheduler struct {
	store    Store
	notifier Notifier
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	running *semaphore.Weighted
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the sweep period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocation sets the zone used for times in reminder texts.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler.
func New(store Store, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		notifier: notifier,
		interval: DefaultInterval,
		loc:      time.UTC,
		now:      time.Now,
		logger:   slog.Default(),
		running:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps immediately and then once per interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "reminder scheduler started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunTick(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.logger.ErrorContext(ctx, "reminder sweep failed", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reminder scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunTick performs one sweep. It returns ErrSweepInProgress without doing
// anything if a sweep is already running. Failures for single
// appointments are logged and counted; only a failure to list
// appointments is returned.
func (s *Scheduler) RunTick(ctx context.Context) (Stats, error) {
	if !s.running.TryAcquire(1) {
		s.logger.WarnContext(ctx, "skipping reminder sweep, previous sweep still running")
		s.metrics.RecordSweepSkipped(ctx)
		return Stats{}, ErrSweepInProgress
	}
	defer s.running.Release(1)

	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, instrumentation.SpanReminderSweep)
	stats, err := s.sweep(ctx)
	span.SetAttributes(
		attribute.Int("meetmate.reminder.considered", stats.Considered),
		attribute.Int("meetmate.reminder.sent", stats.Sent),
		attribute.Int("meetmate.reminder.failed", stats.Failed),
	)
	instrumentation.EndSpan(span, err)
	s.metrics.RecordSweep(ctx, time.Since(start))

	if err == nil {
		s.logger.DebugContext(ctx, "reminder sweep finished",
			slog.Int("considered", stats.Considered),
			slog.Int("sent", stats.Sent),
			slog.Int("failed", stats.Failed),
			logging.Duration(time.Since(start)))
	}
	return stats, err
}

func (s *Scheduler) sweep(ctx context.Context) (Stats, error) {
	var stats Stats
	now := s.now()

	appts, err := s.store.ListUpcomingAppointments(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to list upcoming appointments: %w", err)
	}

	for _, appt := range appts {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Considered++

		tier, ok := DueTier(appt.Reminders, appt.Start.Sub(now))
		if !ok {
			continue
		}
		switch sent, err := s.remind(ctx, appt, tier, now); {
		case err != nil:
			stats.Failed++
		case sent:
			stats.Sent++
		default:
			stats.Contended++
		}
	}
	return stats, nil
}

// remind claims tier for appt, then notifies. The claim marks tier and all
// coarser tiers in one compare-and-swap so a tier is sent at most once
// even if sweeps overlap across processes. A failed send releases the
// claim so the next sweep retries.
func (s *Scheduler) remind(ctx context.Context, appt model.Appointment, tier model.ReminderTier, now time.Time) (bool, error) {
	logger := s.logger.With(
		logging.Tier(tier.String()),
		logging.EventID(appt.EventID),
		logging.UserHash(appt.UserID),
	)

	claimed := appt.Reminders.MarkThrough(tier)
	ok, err := s.store.SetReminderFlags(ctx, appt.ID, appt.Reminders, claimed)
	if err != nil {
		logger.ErrorContext(ctx, "failed to record reminder", logging.Err(err))
		s.metrics.RecordReminder(ctx, tier.String(), instrumentation.ReminderFailed)
		return false, err
	}
	if !ok {
		logger.DebugContext(ctx, "reminder already claimed")
		s.metrics.RecordReminder(ctx, tier.String(), instrumentation.ReminderSkipped)
		return false, nil
	}

	text := Message(appt, appt.Start.Sub(now), s.loc)
	if err := s.notifier.Send(ctx, appt.UserID, text); err != nil {
		logger.WarnContext(ctx, "failed to send reminder", logging.Err(err))
		s.metrics.RecordReminder(ctx, tier.String(), instrumentation.ReminderFailed)
		if _, rerr := s.store.SetReminderFlags(ctx, appt.ID, claimed, appt.Reminders); rerr != nil {
			logger.ErrorContext(ctx, "failed to release reminder claim", logging.Err(rerr))
		}
		return false, err
	}

	logger.InfoContext(ctx, "reminder sent")
	s.metrics.RecordReminder(ctx, tier.String(), instrumentation.ReminderSent)
	return true, nil
}

// DueTier picks the finest tier whose threshold has been reached and that
// has not been sent yet.
func DueTier(flags model.ReminderFlags, timeToStart time.Duration) (model.ReminderTier, bool) {
	if timeToStart <= 0 {
		return 0, false
	}
	for _, tier := range model.TiersFinestFirst {
		if tier.Threshold() >= timeToStart && !flags.Sent(tier) {
			return tier, true
		}
	}
	return 0, false
}
