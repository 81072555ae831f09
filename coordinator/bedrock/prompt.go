package bedrock

import (
	"encoding/json"

	"plantagent"
)

type Prompt struct {
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

func NewPrompt(task string, tp plantagent.ToolProvider) (Prompt, error) {
	tools := tp.GetTools()

	bedrockTools := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		bedrockTools = append(bedrockTools, Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}

	return Prompt{
		Messages: []Message{
			{
				Role: "system",
				Content: []MessagePart{
					{
						Type: "text",
						Text: string(systemPrompt),
					},
				},
			},
			{
				Role: "user",
				Content: []MessagePart{
					{
						Type: "text",
						Text: task,
					},
				},
			},
		},
		Tools: bedrockTools,
	}, nil
}

const systemPrompt = `You are a batch plant production assistant.

GOAL:
Decide whether the plant can produce the requested number of batches of the requested product, using the tools to gather the product recipe, current tank levels, and machine states, then return the final assessment JSON.

FINAL OUTPUT FORMAT:
When you are ready to complete the task, return ONLY the JSON object - no explanations, no text before or after, no markdown formatting. Start immediately with { and end with }.

Example of correct final response format:
{
  "decision": "go",
  "can_produce": true,
  ...
}

JSON Schema:
{
  "decision": "go" | "no-go",            // must agree with can_produce
  "can_produce": boolean,
  "product": string,                     // the product assessed
  "batches": integer,                    // as requested by the user, > 0
  "reasoning": string,                   // exact required vs available per material, each machine's state, and a summary
  "materials": [                         // one entry per recipe material
    {
      "material": string,
      "required": number,                // qty_per_batch x batches
      "available": number,               // from tank_levels_get
      "unit": string,
      "sufficient": boolean              // available >= required, same unit
    }
  ],
  "machine_states": { "<machine>": "<state>" },
  "tools_used": [string]                 // names of the tools you called
}

If any field has no content, use an empty array [] or "" appropriately.
The JSON must be valid UTF-8, with no commentary, no markdown, and no trailing commas.

TOOL USE:
When you need more information, use the provided tools directly through the tool interface.
Do not wrap tool requests in JSON text such as {"tool_calls":[...]}.
Do not echo tool results yourself - the coordinator will supply them.

CRITICAL RULES:
- Always call recipe_get first (with the product name from the user's request). If the product is unknown, return a "no-go" final JSON explaining that and do NOT call the equipment tools.
- Always call tank_levels_get and machine_states_get before a "go" decision.
- required = qty_per_batch x batches. A material is sufficient only if available >= required in the same unit; equal counts as sufficient. Never assume unit conversions.
- A tank listed under "failures" means that material is UNKNOWN: never count it as sufficient, and say explicitly that it could not be verified.
- Every machine must be operational (running, idle, starved, or blocked). disabled, planned_downtime, and unplanned_downtime block production.
- decision is "go" only if every material is sufficient AND every machine is operational.
- The coordinator re-checks your verdict against the recipe and telemetry; an inconsistent verdict will be sent back for revision.
- Call each tool at most once per session; reuse the latest tool_result content already provided.
`

// HasToolResult returns true if a tool result for the specified tool name
// exists in the prompt's message history.
func (p *Prompt) HasToolResult(tool string) bool {
	for _, msg := range p.Messages {
		for _, part := range msg.Content {
			if part.Type == "tool_result" && part.ToolName == tool {
				return true
			}
		}
	}
	return false
}

// HasToolResultInContent returns true if a tool result for the specified tool name exists in any message content.
// It checks all messages (regardless of role) for JSON objects with a "tool_result" field equal to the given tool name.
// This is useful for coordinators that embed tool results in user messages rather than using formal tool roles.
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
