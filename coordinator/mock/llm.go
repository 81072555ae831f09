package mock

import (
	"context"
	"encoding/json"
	"log/slog"
)

type LLMClient struct{}

func NewLLMClient(_ Prompt) *LLMClient {
	return &LLMClient{}
}

// Invoke is a mock implementation that simulates an LLM response based on the presence of tool results in the prompt. It is, of course, deterministic and only serves as a learning aid to see how the coordinator handles different phases of tool use and response generation. Real LLMs may not be so kind :)
func (m *LLMClient) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "messages_len", len(prompt.Messages))

	// Phase 1: nothing gathered yet -> fetch the recipe first
	if !prompt.HasToolResultInContent("recipe_get") {
		plan := map[string]any{
			"tool_calls": []map[string]any{
				{"name": "recipe_get", "input": map[string]any{"product": "Product A"}},
			},
		}
		b, err := json.Marshal(plan)
		if err != nil {
			slog.Error("Failed to marshal plan", "error", err)
			return Response{Content: ""}, nil
		}

		slog.Info("LLM_CLIENT: Returning plan for recipe_get")

		return Response{Content: string(b)}, nil
	}

	// Phase 2: recipe in hand -> fetch plant telemetry
	if !prompt.HasToolResultInContent("tank_levels_get") || !prompt.HasToolResultInContent("machine_states_get") {
		plan := map[string]any{
			"tool_calls": []map[string]any{
				{"name": "tank_levels_get", "input": map[string]any{}},
				{"name": "machine_states_get", "input": map[string]any{}},
			},
		}
		b, err := json.Marshal(plan)
		if err != nil {
			slog.Error("Failed to marshal plan", "error", err)
			return Response{Content: ""}, nil
		}

		slog.Info("LLM_CLIENT: Returning plan for tank_levels_get and machine_states_get")

		return Response{Content: string(b)}, nil
	}

	// Phase 3: all tool results present -> return final structured assessment
	final := map[string]any{
		"decision":    "go",
		"can_produce": true,
		"product":     "Product A",
		"batches":     3,
		"reasoning":   "All materials sufficient for 3 batches and all machines operational.",
		"materials": []map[string]any{
			{"material": "Material A", "required": 300, "available": 8000, "unit": "l", "sufficient": true},
			{"material": "Material B", "required": 600, "available": 13032, "unit": "l", "sufficient": true},
			{"material": "Material C", "required": 450, "available": 18947, "unit": "l", "sufficient": true},
		},
		"machine_states": map[string]string{
			"mixer":   "running",
			"reactor": "idle",
			"filler":  "running",
		},
		"tools_used": []string{"recipe_get", "tank_levels_get", "machine_states_get"},
	}
	b, err := json.Marshal(final)
	if err != nil {
		slog.Error("Failed to marshal final response", "error", err)
		return Response{Content: ""}, nil
	}

	slog.Info("LLM_CLIENT: Returning final production assessment")

	return Response{Content: string(b)}, nil
}
