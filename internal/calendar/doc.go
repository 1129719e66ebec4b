// Package calendar wraps the Google Calendar v3 API for one user's
// session. Times are sent to Google as UTC instants and returned in UTC.
// A missing or already-deleted event is reported as ErrNotFound.
package calendar
