package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReminderTierThresholds(t *testing.T) {
	tests := []struct {
		tier ReminderTier
		want time.Duration
		name string
	}{
		{Tier24h, 24 * time.Hour, "24h"},
		{Tier3h, 3 * time.Hour, "3h"},
		{Tier1h, time.Hour, "1h"},
		{Tier15m, 15 * time.Minute, "15m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tier.Threshold())
			assert.Equal(t, tt.name, tt.tier.String())
		})
	}
}

func TestTiersFinestFirstIsAscendingByThreshold(t *testing.T) {
	for i := 1; i < len(TiersFinestFirst); i++ {
		assert.Less(t, TiersFinestFirst[i-1].Threshold(), TiersFinestFirst[i].Threshold())
	}
}

func TestReminderFlagsMarkThrough(t *testing.T) {
	tests := []struct {
		name string
		tier ReminderTier
		want ReminderFlags
	}{
		{"24h marks only itself", Tier24h, ReminderFlags{Sent24h: true}},
		{"3h marks 3h and 24h", Tier3h, ReminderFlags{Sent24h: true, Sent3h: true}},
		{"1h marks coarser", Tier1h, ReminderFlags{Sent24h: true, Sent3h: true, Sent1h: true}},
		{"15m marks all", Tier15m, ReminderFlags{Sent24h: true, Sent3h: true, Sent1h: true, Sent15m: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReminderFlags{}.MarkThrough(tt.tier)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Monotonic())
			assert.True(t, got.Sent(tt.tier))
		})
	}
}

func TestReminderFlagsMonotonic(t *testing.T) {
	assert.True(t, ReminderFlags{}.Monotonic())
	assert.False(t, ReminderFlags{Sent15m: true}.Monotonic())
	assert.False(t, ReminderFlags{Sent24h: true, Sent1h: true}.Monotonic())
	assert.False(t, ReminderFlags{Sent3h: true}.Monotonic())
}

func TestNormalizeTime(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	in := time.Date(2026, 3, 1, 9, 30, 15, 999, bogota)
	got := NormalizeTime(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, time.Date(2026, 3, 1, 14, 30, 15, 0, time.UTC), got)
}

func TestMessageRoles(t *testing.T) {
	tests := []struct {
		msg  Message
		want Role
	}{
		{UserMessage{Text: "hi"}, RoleUser},
		{AssistantTextMessage{Text: "hello"}, RoleAssistant},
		{AssistantToolCallMessage{Calls: []ToolCall{{ID: "c1"}}}, RoleAssistantToolCalls},
		{ToolResultMessage{CallID: "c1"}, RoleToolResult},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.msg.Role())
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", Invalid("create", "title is required"), KindValidation},
		{"wrapped provider", fmt.Errorf("outer: %w", &ExternalProviderError{Op: "list", Provider: "calendar", Err: errors.New("503")}), KindProvider},
		{"auth", &AuthExpiredError{Op: "create"}, KindAuth},
		{"protocol", &AgentProtocolError{Op: "update", Err: errors.New("bad json")}, KindProtocol},
		{"persistence", &PersistenceError{Op: "save", Err: errors.New("disk full")}, KindPersistence},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("cause")
	errs := []error{
		&ValidationError{Op: "x", Err: cause},
		&ExternalProviderError{Op: "x", Provider: "calendar", Err: cause},
		&AuthExpiredError{Op: "x", Err: cause},
		&AgentProtocolError{Op: "x", Err: cause},
		&PersistenceError{Op: "x", Err: cause},
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "x:")
	}

	assert.Equal(t, "create: account not connected", (&AuthExpiredError{Op: "create"}).Error())
}
