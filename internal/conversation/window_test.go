package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetmate/internal/model"
)

func TestTrimToUser(t *testing.T) {
	user := model.UserMessage{Text: "move it to 3pm"}
	call := model.AssistantToolCallMessage{Calls: []model.ToolCall{{ID: "a", Operation: "list_appointments"}}}
	result := model.ToolResultMessage{CallID: "a", Operation: "list_appointments", Content: "{}"}
	text := model.AssistantTextMessage{Text: "Done."}

	tests := []struct {
		name string
		in   []model.Message
		want []model.Message
	}{
		{
			name: "starts with user",
			in:   []model.Message{user, text},
			want: []model.Message{user, text},
		},
		{
			name: "starts with tool result",
			in:   []model.Message{result, text, user},
			want: []model.Message{user},
		},
		{
			name: "starts with tool call",
			in:   []model.Message{call, result, text, user, text},
			want: []model.Message{user, text},
		},
		{
			name: "no user message",
			in:   []model.Message{call, result, text},
			want: nil,
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trimToUser(tt.in))
		})
	}
}

func TestRepairToolResults(t *testing.T) {
	user := model.UserMessage{Text: "book lunch"}
	call := model.AssistantToolCallMessage{Calls: []model.ToolCall{
		{ID: "a", Operation: "create_appointment"},
		{ID: "b", Operation: "list_appointments"},
	}}
	resultA := model.ToolResultMessage{CallID: "a", Operation: "create_appointment", Content: `{"status":"success"}`}
	resultB := model.ToolResultMessage{CallID: "b", Operation: "list_appointments", Content: `{"status":"success"}`}
	synthB := model.ToolResultMessage{CallID: "b", Operation: "list_appointments", Content: interruptedResult}
	synthA := model.ToolResultMessage{CallID: "a", Operation: "create_appointment", Content: interruptedResult}
	orphan := model.ToolResultMessage{CallID: "zzz", Operation: "send_email", Content: "{}"}

	tests := []struct {
		name string
		in   []model.Message
		want []model.Message
	}{
		{
			name: "complete turn unchanged",
			in:   []model.Message{user, call, resultA, resultB},
			want: []model.Message{user, call, resultA, resultB},
		},
		{
			name: "results reordered to call order",
			in:   []model.Message{user, call, resultB, resultA},
			want: []model.Message{user, call, resultA, resultB},
		},
		{
			name: "missing result synthesized",
			in:   []model.Message{user, call, resultA, user},
			want: []model.Message{user, call, resultA, synthB, user},
		},
		{
			name: "all results missing at end",
			in:   []model.Message{user, call},
			want: []model.Message{user, call, synthA, synthB},
		},
		{
			name: "orphaned result dropped",
			in:   []model.Message{user, orphan, model.AssistantTextMessage{Text: "ok"}},
			want: []model.Message{user, model.AssistantTextMessage{Text: "ok"}},
		},
		{
			name: "unknown result inside a turn dropped",
			in:   []model.Message{user, call, resultA, orphan, resultB},
			want: []model.Message{user, call, resultA, resultB},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]model.Message(nil), tt.in...)
			assert.Equal(t, tt.want, repairToolResults(in))
			assert.Equal(t, tt.in, in, "input is not modified")
		})
	}
}

func TestPrepareWindow(t *testing.T) {
	user := model.UserMessage{Text: "thanks"}
	call := model.AssistantToolCallMessage{Calls: []model.ToolCall{{ID: "a", Operation: "delete_appointment"}}}
	result := model.ToolResultMessage{CallID: "a", Operation: "delete_appointment", Content: "{}"}

	tests := []struct {
		name string
		in   []model.Message
		want []model.Message
	}{
		{
			name: "cut inside a turn",
			in:   []model.Message{result, model.AssistantTextMessage{Text: "Deleted."}, user},
			want: []model.Message{user},
		},
		{
			name: "cut at a tool call",
			in:   []model.Message{call, result, user, call},
			want: []model.Message{user, call, model.ToolResultMessage{CallID: "a", Operation: "delete_appointment", Content: interruptedResult}},
		},
		{
			name: "no user message",
			in:   []model.Message{call, result},
			want: []model.Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prepareWindow(tt.in)
			assert.Equal(t, tt.want, got)
			if len(got) > 0 {
				_, ok := got[0].(model.UserMessage)
				require.True(t, ok, "window starts with %T", got[0])
			}
		})
	}
}
