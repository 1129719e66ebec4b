package dispatcher

import (
	"strings"
	"time"

	"github.com/teemow/meetmate/internal/model"
)

// localLayouts are accepted for times given without a zone offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTime reads an agent-supplied time. Times without an offset are in
// the dispatcher's location. The result is a normalized UTC instant.
func (d *Dispatcher) parseTime(op, field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, model.Invalid(op, "%s is required", field)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return model.NormalizeTime(t), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, d.loc); err == nil {
			return model.NormalizeTime(t), nil
		}
	}
	return time.Time{}, model.Invalid(op, "%s %q is not an RFC3339 time", field, value)
}

// timeMin parses an optional lower bound, defaulting to now.
func (d *Dispatcher) timeMin(op, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return model.NormalizeTime(d.now()), nil
	}
	return d.parseTime(op, "time_min", value)
}

// formatTime renders t for the agent in the dispatcher's location.
func (d *Dispatcher) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(d.loc).Format(time.RFC3339)
}
