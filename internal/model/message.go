package model

// Role identifies the kind of a conversation message.
type Role string

const (
	RoleUser               Role = "user"
	RoleAssistant          Role = "assistant"
	RoleAssistantToolCalls Role = "assistant-with-tool-calls"
	RoleToolResult         Role = "tool-result"
)

// Message is one entry of a user's conversation log. The concrete types are
// UserMessage, AssistantTextMessage, AssistantToolCallMessage and
// ToolResultMessage; the set is closed.
type Message interface {
	Role() Role
	isMessage()
}

// ToolCall is one operation requested by the agent. Arguments is the raw JSON
// text produced by the agent and may be malformed.
type ToolCall struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Arguments string `json:"arguments"`
}

// UserMessage is an utterance from the end user.
type UserMessage struct {
	Text string
}

// AssistantTextMessage is a final natural-language reply.
type AssistantTextMessage struct {
	Text string
}

// AssistantToolCallMessage is an agent turn that requested operations.
// Text is optional commentary that accompanied the calls.
type AssistantToolCallMessage struct {
	Text  string
	Calls []ToolCall
}

// ToolResultMessage carries the serialized outcome of one tool call.
type ToolResultMessage struct {
	CallID    string
	Operation string
	Content   string
}

func (UserMessage) Role() Role              { return RoleUser }
func (AssistantTextMessage) Role() Role     { return RoleAssistant }
func (AssistantToolCallMessage) Role() Role { return RoleAssistantToolCalls }
func (ToolResultMessage) Role() Role        { return RoleToolResult }

func (UserMessage) isMessage()              {}
func (AssistantTextMessage) isMessage()     {}
func (AssistantToolCallMessage) isMessage() {}
func (ToolResultMessage) isMessage()        {}
