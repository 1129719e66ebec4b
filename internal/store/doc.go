// Package store persists appointments, OAuth credentials and conversation
// logs in SQLite or PostgreSQL through database/sql.
//
// All state that drives reminders and conversations lives here so the
// orchestrator and the scheduler keep nothing in process memory between
// invocations.
package store
