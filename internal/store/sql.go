package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/meetmate/internal/model"
)

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	cipher  Cipher
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: d,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

const appointmentColumns = `id, event_id, user_id, title, start_time, end_time,
	sent_24h, sent_3h, sent_1h, sent_15m, created_at`

var reminderColumns = []string{"sent_24h", "sent_3h", "sent_1h", "sent_15m"}

// SaveAppointment inserts a new appointment, assigning ID and CreatedAt when empty.
func (s *SQLStore) SaveAppointment(ctx context.Context, appt *model.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = model.NormalizeTime(s.now())
	}
	appt.Start = model.NormalizeTime(appt.Start)
	appt.End = model.NormalizeTime(appt.End)

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		appt.ID, appt.EventID, appt.UserID, appt.Title, appt.Start, appt.End,
		appt.Reminders.Sent24h, appt.Reminders.Sent3h, appt.Reminders.Sent1h, appt.Reminders.Sent15m,
		appt.CreatedAt,
	)
	if err != nil {
		return &model.PersistenceError{Op: "save appointment", Err: err}
	}
	return nil
}

// GetAppointmentByEvent returns the user's appointment for an external event id.
// It returns nil and no error when there is no such row.
func (s *SQLStore) GetAppointmentByEvent(ctx context.Context, userID, eventID string) (*model.Appointment, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+appointmentColumns+`
		FROM appointments WHERE user_id = ? AND event_id = ?`), userID, eventID)

	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "get appointment", Err: err}
	}
	return appt, nil
}

// UpdateAppointment applies change to the user's appointment for eventID in
// a single statement and reports whether a row matched. Reminder flags are
// only written when the start actually moves, and then they are cleared
// against the row's current start, so a tier claimed by a concurrent sweep
// is never rolled back.
func (s *SQLStore) UpdateAppointment(ctx context.Context, userID, eventID string, change model.AppointmentChange) (bool, error) {
	if change.Empty() {
		return false, nil
	}

	var (
		sets []string
		args []any
	)
	if change.Title != "" {
		sets = append(sets, "title = ?")
		args = append(args, change.Title)
	}
	if !change.Start.IsZero() {
		start := model.NormalizeTime(change.Start)
		for _, col := range reminderColumns {
			sets = append(sets, col+" = CASE WHEN start_time = ? THEN "+col+" ELSE FALSE END")
			args = append(args, start)
		}
		sets = append(sets, "start_time = ?")
		args = append(args, start)
	}
	if !change.End.IsZero() {
		sets = append(sets, "end_time = ?")
		args = append(args, model.NormalizeTime(change.End))
	}
	args = append(args, userID, eventID)

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE appointments SET `+strings.Join(sets, ", ")+`
		WHERE user_id = ? AND event_id = ?`), args...)
	if err != nil {
		return false, &model.PersistenceError{Op: "update appointment", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.PersistenceError{Op: "update appointment", Err: err}
	}
	return n > 0, nil
}

// DeleteAppointmentByEvent removes the user's appointment for eventID and
// reports whether a row existed.
func (s *SQLStore) DeleteAppointmentByEvent(ctx context.Context, userID, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM appointments WHERE user_id = ? AND event_id = ?`),
		userID, eventID)
	if err != nil {
		return false, &model.PersistenceError{Op: "delete appointment", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.PersistenceError{Op: "delete appointment", Err: err}
	}
	return n > 0, nil
}

// ListUpcomingAppointments returns every appointment starting after now,
// ordered by start time.
func (s *SQLStore) ListUpcomingAppointments(ctx context.Context, now time.Time) ([]model.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+appointmentColumns+`
		FROM appointments WHERE start_time > ? ORDER BY start_time ASC`), model.NormalizeTime(now))
	if err != nil {
		return nil, &model.PersistenceError{Op: "list appointments", Err: err}
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, &model.PersistenceError{Op: "list appointments", Err: err}
		}
		appts = append(appts, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.PersistenceError{Op: "list appointments", Err: err}
	}
	return appts, nil
}

// SetReminderFlags atomically replaces the reminder flags of appointment id
// with to, but only if they still equal from. It reports whether the swap
// happened, which lets concurrent sweeps claim a tier at most once.
func (s *SQLStore) SetReminderFlags(ctx context.Context, id string, from, to model.ReminderFlags) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE appointments
		SET sent_24h = ?, sent_3h = ?, sent_1h = ?, sent_15m = ?
		WHERE id = ? AND sent_24h = ? AND sent_3h = ? AND sent_1h = ? AND sent_15m = ?`),
		to.Sent24h, to.Sent3h, to.Sent1h, to.Sent15m,
		id,
		from.Sent24h, from.Sent3h, from.Sent1h, from.Sent15m,
	)
	if err != nil {
		return false, &model.PersistenceError{Op: "set reminder flags", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.PersistenceError{Op: "set reminder flags", Err: err}
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID, &appt.EventID, &appt.UserID, &appt.Title, &appt.Start, &appt.End,
		&appt.Reminders.Sent24h, &appt.Reminders.Sent3h, &appt.Reminders.Sent1h, &appt.Reminders.Sent15m,
		&appt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.Start = appt.Start.UTC()
	appt.End = appt.End.UTC()
	appt.CreatedAt = appt.CreatedAt.UTC()
	return &appt, nil
}

// GetCredential returns the user's credential, or nil and no error when the
// user has never connected an account.
func (s *SQLStore) GetCredential(ctx context.Context, userID string) (*model.Credential, error) {
	var (
		cred   model.Credential
		scopes string
		expiry sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT user_id, access_token, refresh_token, token_uri,
		client_id, client_secret, scopes, expiry, updated_at
		FROM credentials WHERE user_id = ?`), userID).Scan(
		&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.TokenURI,
		&cred.ClientID, &cred.ClientSecret, &scopes, &expiry, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "get credential", Err: err}
	}

	if scopes != "" {
		cred.Scopes = strings.Fields(scopes)
	}
	if expiry.Valid {
		cred.Expiry = expiry.Time.UTC()
	}
	if s.cipher != nil {
		if cred.AccessToken, err = s.cipher.Decrypt(cred.AccessToken); err != nil {
			return nil, &model.PersistenceError{Op: "decrypt credential", Err: err}
		}
		if cred.RefreshToken, err = s.cipher.Decrypt(cred.RefreshToken); err != nil {
			return nil, &model.PersistenceError{Op: "decrypt credential", Err: err}
		}
	}
	return &cred, nil
}

// SaveCredential inserts or replaces the user's credential.
func (s *SQLStore) SaveCredential(ctx context.Context, cred *model.Credential) error {
	access, refresh := cred.AccessToken, cred.RefreshToken
	if s.cipher != nil {
		var err error
		if access, err = s.cipher.Encrypt(access); err != nil {
			return &model.PersistenceError{Op: "encrypt credential", Err: err}
		}
		if refresh, err = s.cipher.Encrypt(refresh); err != nil {
			return &model.PersistenceError{Op: "encrypt credential", Err: err}
		}
	}

	var expiry sql.NullTime
	if !cred.Expiry.IsZero() {
		expiry = sql.NullTime{Time: cred.Expiry.UTC(), Valid: true}
	}
	cred.UpdatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO credentials
		(user_id, access_token, refresh_token, token_uri, client_id, client_secret, scopes, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_uri = excluded.token_uri,
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			scopes = excluded.scopes,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`),
		cred.UserID, access, refresh, cred.TokenURI, cred.ClientID, cred.ClientSecret,
		strings.Join(cred.Scopes, " "), expiry, cred.UpdatedAt,
	)
	if err != nil {
		return &model.PersistenceError{Op: "save credential", Err: err}
	}
	return nil
}

// AppendMessage appends msg to the end of the user's conversation log.
func (s *SQLStore) AppendMessage(ctx context.Context, userID string, msg model.Message) error {
	var (
		content   sql.NullString
		callID    string
		operation string
		toolCalls string
	)

	switch m := msg.(type) {
	case model.UserMessage:
		content = sql.NullString{String: m.Text, Valid: true}
	case model.AssistantTextMessage:
		content = sql.NullString{String: m.Text, Valid: true}
	case model.AssistantToolCallMessage:
		if m.Text != "" {
			content = sql.NullString{String: m.Text, Valid: true}
		}
		raw, err := json.Marshal(m.Calls)
		if err != nil {
			return &model.PersistenceError{Op: "append message", Err: err}
		}
		toolCalls = string(raw)
	case model.ToolResultMessage:
		content = sql.NullString{String: m.Content, Valid: true}
		callID, operation = m.CallID, m.Operation
	default:
		return &model.PersistenceError{Op: "append message", Err: fmt.Errorf("unknown message type %T", msg)}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO messages
		(user_id, role, content, call_id, operation, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		userID, string(msg.Role()), content, callID, operation, toolCalls, s.now().UTC(),
	)
	if err != nil {
		return &model.PersistenceError{Op: "append message", Err: err}
	}
	return nil
}

// RecentMessages returns the user's last limit messages in log order.
func (s *SQLStore) RecentMessages(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT role, content, call_id, operation, tool_calls FROM (
			SELECT seq, role, content, call_id, operation, tool_calls
			FROM messages WHERE user_id = ? ORDER BY seq DESC LIMIT ?
		) recent ORDER BY seq ASC`), userID, limit)
	if err != nil {
		return nil, &model.PersistenceError{Op: "load messages", Err: err}
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			role                         string
			content                      sql.NullString
			callID, operation, toolCalls string
		)
		if err := rows.Scan(&role, &content, &callID, &operation, &toolCalls); err != nil {
			return nil, &model.PersistenceError{Op: "load messages", Err: err}
		}

		msg, err := decodeMessage(model.Role(role), content.String, callID, operation, toolCalls)
		if err != nil {
			return nil, &model.PersistenceError{Op: "load messages", Err: err}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.PersistenceError{Op: "load messages", Err: err}
	}
	return msgs, nil
}

func decodeMessage(role model.Role, content, callID, operation, toolCalls string) (model.Message, error) {
	switch role {
	case model.RoleUser:
		return model.UserMessage{Text: content}, nil
	case model.RoleAssistant:
		return model.AssistantTextMessage{Text: content}, nil
	case model.RoleAssistantToolCalls:
		var calls []model.ToolCall
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &calls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		return model.AssistantToolCallMessage{Text: content, Calls: calls}, nil
	case model.RoleToolResult:
		return model.ToolResultMessage{CallID: callID, Operation: operation, Content: content}, nil
	}
	return nil, fmt.Errorf("unknown message role %q", role)
}
