package google

import (
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are requested when connecting an account: calendar
// read/write for appointments and gmail.send for send_email.
var DefaultOAuthScopes = []string{
	calendar.CalendarScope,
	gmail.GmailSendScope,
}
