package mock

import (
	"encoding/json"

	"plantagent"
)

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Prompt struct {
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

func NewPrompt(task string, tp plantagent.ToolProvider) (Prompt, error) {
	var promptTools []Tool
	for _, tool := range tp.GetTools() {
		promptTools = append(promptTools, Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}

	return Prompt{
		Messages: []Message{
			{
				Role: "system",
				Content: []MessagePart{{
					Type: "text",
					Text: systemPrompt,
				}},
			},
			{
				Role: "user",
				Content: []MessagePart{{
					Type: "text",
					Text: task,
				}},
			},
		},
		Tools: promptTools,
	}, nil
}

const systemPrompt = `You are a batch plant production assistant. Gather the product recipe, tank levels, and machine states with the provided tools, then return a final JSON assessment with decision, can_produce, product, batches, reasoning, materials, machine_states, and tools_used.`

// HasToolResultInContent returns true if a tool result for the specified tool
// name exists in any message content. The mock coordinator embeds tool results
// in user messages rather than using formal tool roles.
func (p *Prompt) HasToolResultInContent(tool string) bool {
	for _, msg := range p.Messages {
		for _, part := range msg.Content {
			if part.Type != "text" {
				continue
			}

			var payload struct {
				ToolResult string `json:"tool_result"`
			}
			if json.Unmarshal([]byte(part.Text), &payload) == nil && payload.ToolResult == tool {
				return true
			}
		}
	}
	return false
}
