package conversation

import (
	"github.com/teemow/meetmate/internal/dispatcher"
	"github.com/teemow/meetmate/internal/model"
)

// interruptedResult stands in for a tool result that was never recorded,
// e.g. after a crash between the call and its result.
var interruptedResult = dispatcher.Result{
	Status:  dispatcher.StatusError,
	Message: "this operation was interrupted and its outcome is unknown; check the calendar before retrying",
	Kind:    model.KindInternal,
}.JSON()

// trimToUser drops messages from the front until the window starts with a
// user message. A window without any user message is empty.
func trimToUser(msgs []model.Message) []model.Message {
	for i, m := range msgs {
		if _, ok := m.(model.UserMessage); ok {
			return msgs[i:]
		}
	}
	return nil
}

// repairToolResults makes every tool-call message be followed by exactly
// one result per call, in call order. Missing results are synthesized and
// orphaned results are dropped. The input is not modified.
func repairToolResults(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for i := 0; i < len(msgs); {
		switch m := msgs[i].(type) {
		case model.AssistantToolCallMessage:
			out = append(out, m)
			i++

			results := make(map[string]model.ToolResultMessage, len(m.Calls))
			for i < len(msgs) {
				r, ok := msgs[i].(model.ToolResultMessage)
				if !ok {
					break
				}
				results[r.CallID] = r
				i++
			}
			for _, call := range m.Calls {
				if r, ok := results[call.ID]; ok {
					out = append(out, r)
					continue
				}
				out = append(out, model.ToolResultMessage{
					CallID:    call.ID,
					Operation: call.Operation,
					Content:   interruptedResult,
				})
			}
		case model.ToolResultMessage:
			i++
		default:
			out = append(out, m)
			i++
		}
	}
	return out
}

// prepareWindow turns the most recent persisted messages into a window the
// agent protocol accepts.
func prepareWindow(recent []model.Message) []model.Message {
	return repairToolResults(trimToUser(recent))
}
