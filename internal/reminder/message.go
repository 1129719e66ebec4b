package reminder

import (
	"fmt"
	"time"

	"github.com/teemow/meetmate/internal/model"
)

// Message renders the reminder text for appt starting in timeToStart.
func Message(appt model.Appointment, timeToStart time.Duration, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	at := appt.Start.In(loc)
	return fmt.Sprintf("Reminder: %q starts in %s (at %s %s).",
		appt.Title, humanize(timeToStart), at.Format("15:04"), at.Format("MST"))
}

// humanize renders a positive duration rounded to the minute.
func humanize(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	switch {
	case minutes == 1:
		return "1 minute"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours, rest := minutes/60, minutes%60
	unit := "hours"
	if hours == 1 {
		unit = "hour"
	}
	if rest == 0 {
		return fmt.Sprintf("%d %s", hours, unit)
	}
	return fmt.Sprintf("%d %s %d min", hours, unit, rest)
}
