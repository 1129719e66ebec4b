package model

import (
	"fmt"
	"time"
)

// ReminderTier is one escalation level before an appointment starts.
// Values are ordered from coarsest to finest.
type ReminderTier int

const (
	Tier24h ReminderTier = iota
	Tier3h
	Tier1h
	Tier15m
)

// TiersFinestFirst is the order in which the scheduler evaluates tiers.
var TiersFinestFirst = []ReminderTier{Tier15m, Tier1h, Tier3h, Tier24h}

// Threshold is how long before the start the tier becomes due.
func (t ReminderTier) Threshold() time.Duration {
	switch t {
	case Tier24h:
		return 24 * time.Hour
	case Tier3h:
		return 3 * time.Hour
	case Tier1h:
		return time.Hour
	case Tier15m:
		return 15 * time.Minute
	}
	return 0
}

func (t ReminderTier) String() string {
	switch t {
	case Tier24h:
		return "24h"
	case Tier3h:
		return "3h"
	case Tier1h:
		return "1h"
	case Tier15m:
		return "15m"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ReminderFlags records which tiers have been sent for an appointment.
type ReminderFlags struct {
	Sent24h bool
	Sent3h  bool
	Sent1h  bool
	Sent15m bool
}

// Sent reports whether the tier has been sent.
func (f ReminderFlags) Sent(t ReminderTier) bool {
	switch t {
	case Tier24h:
		return f.Sent24h
	case Tier3h:
		return f.Sent3h
	case Tier1h:
		return f.Sent1h
	case Tier15m:
		return f.Sent15m
	}
	return false
}

// MarkThrough returns a copy with t and every coarser tier marked as sent.
func (f ReminderFlags) MarkThrough(t ReminderTier) ReminderFlags {
	if t >= Tier24h {
		f.Sent24h = true
	}
	if t >= Tier3h {
		f.Sent3h = true
	}
	if t >= Tier1h {
		f.Sent1h = true
	}
	if t >= Tier15m {
		f.Sent15m = true
	}
	return f
}

// Monotonic reports whether every sent tier has all coarser tiers sent too.
func (f ReminderFlags) Monotonic() bool {
	if f.Sent15m && !f.Sent1h {
		return false
	}
	if f.Sent1h && !f.Sent3h {
		return false
	}
	if f.Sent3h && !f.Sent24h {
		return false
	}
	return true
}

// Appointment is the local mirror of a calendar event created through the
// assistant. Start and End are UTC instants.
type Appointment struct {
	ID        string
	EventID   string
	UserID    string
	Title     string
	Start     time.Time
	End       time.Time
	Reminders ReminderFlags
	CreatedAt time.Time
}

// AppointmentChange is a partial update of a stored appointment. Zero
// fields are left unchanged. Moving Start clears the reminder flags; any
// other change leaves them to the scheduler.
type AppointmentChange struct {
	Title string
	Start time.Time
	End   time.Time
}

// Empty reports whether the change touches nothing.
func (c AppointmentChange) Empty() bool {
	return c.Title == "" && c.Start.IsZero() && c.End.IsZero()
}

// Credential is a user's stored OAuth grant for the calendar and mail APIs.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Expiry       time.Time
	UpdatedAt    time.Time
}

// NormalizeTime converts t to a second-precision UTC instant, the form in
// which every appointment time is sent to the provider and persisted.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
