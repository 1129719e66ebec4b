package agent

import (
	"github.com/mark3labs/mcp-go/mcp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/teemow/meetmate/internal/model"
)

func toChatMessages(system string, window []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(window)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})

	for _, m := range window {
		switch m := m.(type) {
		case model.UserMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		case model.AssistantTextMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text})
		case model.AssistantToolCallMessage:
			calls := make([]openai.ToolCall, 0, len(m.Calls))
			for _, c := range m.Calls {
				calls = append(calls, openai.ToolCall{
					ID:   c.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      c.Operation,
						Arguments: c.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   m.Text,
				ToolCalls: calls,
			})
		case model.ToolResultMessage:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.Operation,
				ToolCallID: m.CallID,
			})
		}
	}
	return out
}

// toOpenAITools converts MCP tool schemas into function definitions.
func toOpenAITools(tools []mcp.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  parameters(t.InputSchema),
			},
		})
	}
	return out
}

func parameters(schema mcp.ToolInputSchema) map[string]any {
	props := schema.Properties
	if props == nil {
		props = map[string]any{}
	}
	params := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	return params
}
