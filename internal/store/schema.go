package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		sent_24h BOOLEAN NOT NULL DEFAULT FALSE,
		sent_3h BOOLEAN NOT NULL DEFAULT FALSE,
		sent_1h BOOLEAN NOT NULL DEFAULT FALSE,
		sent_15m BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments(start_time)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_uri TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		client_secret TEXT NOT NULL DEFAULT '',
		scopes TEXT NOT NULL DEFAULT '',
		expiry TIMESTAMP NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NULL,
		call_id TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL DEFAULT '',
		tool_calls TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, seq)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		sent_24h BOOLEAN NOT NULL DEFAULT FALSE,
		sent_3h BOOLEAN NOT NULL DEFAULT FALSE,
		sent_1h BOOLEAN NOT NULL DEFAULT FALSE,
		sent_15m BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments(start_time)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_uri TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		client_secret TEXT NOT NULL DEFAULT '',
		scopes TEXT NOT NULL DEFAULT '',
		expiry TIMESTAMPTZ NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NULL,
		call_id TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL DEFAULT '',
		tool_calls TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, seq)`,
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.dialect == dialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the dialect's form.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
