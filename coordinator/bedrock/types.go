package bedrock

import "plantagent/tools"

// MessagePart is one content block in a conversation message: plain text, a
// tool use requested by the assistant, or a tool result fed back to it.
type MessagePart struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Data      map[string]any `json:"data,omitempty"` // JSON result we want to feed back
}

type MessageParts []MessagePart

func (mp MessageParts) Join() string {
	var result string
	for _, part := range mp {
		if part.Type == "text" {
			result += part.Text
		}
	}
	return result
}

type Message struct {
	Role    string       `json:"role"`
	Content MessageParts `json:"content"`
}

// Response is what the model returned for one turn: either free text (a
// candidate final assessment) or tool calls to execute, never usefully both.
type Response struct {
	Content   string       `json:"content"`
	ToolCalls []tools.Call `json:"tool_calls,omitempty"`
}

type ToolResult struct {
	ToolUseID string
	ToolName  string
	Data      map[string]any
}

// NewToolResultMessage wraps tool results in the user-role message the
// Converse API expects them in.
func NewToolResultMessage(results []ToolResult) Message {
	var parts MessageParts
	for _, result := range results {
		parts = append(parts, MessagePart{
			Type:      "tool_result",
			ToolUseID: result.ToolUseID,
			ToolName:  result.ToolName,
			Data:      result.Data,
		})
	}
	return Message{
		Role:    "user",
		Content: parts,
	}
}
