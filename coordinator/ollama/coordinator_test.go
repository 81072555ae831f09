package ollama

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"plantagent"
	"plantagent/plant"
	"plantagent/tools"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Mock LLM Client
type mockLLMClient struct {
	responses []Response
	callCount int
	shouldErr bool
}

func (m *mockLLMClient) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	if m.shouldErr {
		return Response{}, errors.New("mock LLM error")
	}

	if m.callCount >= len(m.responses) {
		return Response{Content: "No more responses configured"}, nil
	}

	response := m.responses[m.callCount]
	m.callCount++
	return response, nil
}

// Mock Tool Provider
type mockToolProvider struct {
	tools []tools.Tool
}

func (m *mockToolProvider) GetTools() []tools.Tool {
	return m.tools
}

func (m *mockToolProvider) GetTool(name string) (tools.Tool, error) {
	for _, tool := range m.tools {
		if tool.Name() == name {
			return tool, nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

// Mock Tool
type mockTool struct {
	name      string
	runErr    error
	callCount int
	result    map[string]any
}

func (m *mockTool) Name() string {
	return m.name
}

func (m *mockTool) Title() string {
	return m.name + " Tool"
}

func (m *mockTool) Description() string {
	return "Mock tool for testing"
}

func (m *mockTool) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"product": {Type: "string"},
		},
	}
}

func (m *mockTool) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"result": {Type: "string"},
		},
	}
}

func (m *mockTool) Run(ctx context.Context, input map[string]any) (output map[string]any, err error) {
	m.callCount++

	if m.runErr != nil {
		return nil, m.runErr
	}

	if m.result != nil {
		return m.result, nil
	}

	return map[string]any{
		"result": fmt.Sprintf("Mock result from %s", m.name),
		"input":  input,
	}, nil
}

func plantTools() []tools.Tool {
	return []tools.Tool{
		&mockTool{
			name: "recipe_get",
			result: map[string]any{
				"product": "Product A",
				"recipe": []map[string]any{
					{"material": "Material A", "tank": 1, "qty_per_batch": 100.0, "unit": "l"},
				},
			},
		},
		&mockTool{
			name: "tank_levels_get",
			result: map[string]any{
				"tanks": []map[string]any{
					{"tank_id": "tank-1", "material": "Material A", "level": 8000.0, "unit": "l"},
				},
			},
		},
		&mockTool{
			name: "machine_states_get",
			result: map[string]any{
				"machines": map[string]any{"mixer": "running"},
			},
		},
	}
}

func allToolCalls() []ToolCall {
	return []ToolCall{
		{Name: "recipe_get", Args: map[string]any{"product": "Product A"}},
		{Name: "tank_levels_get", Args: map[string]any{}},
		{Name: "machine_states_get", Args: map[string]any{}},
	}
}

const finalGoJSON = `{"decision":"go","can_produce":true,"product":"Product A","batches":3,"reasoning":"Material A: required 300 l <= available 8000 l. mixer running.","materials":[{"material":"Material A","required":300,"available":8000,"unit":"l","sufficient":true}],"machine_states":{"mixer":"running"},"tools_used":["recipe_get","tank_levels_get","machine_states_get"]}`

const finalNoGoJSON = `{"decision":"no-go","can_produce":false,"product":"Product Z","batches":3,"reasoning":"Product Z is not a known product; no equipment checks attempted.","materials":[],"machine_states":{},"tools_used":["recipe_get"]}`

func TestNewCoordinator(t *testing.T) {
	llm := &mockLLMClient{}
	tp := &mockToolProvider{}
	logger := plantagent.NewNoOpCoordinationLogger()
	tracerProvider := trace.NewTracerProvider()

	coord := NewCoordinator(llm, tp, 5, logger, tracerProvider)

	if coord.llm != llm {
		t.Error("Expected LLM client to be set")
	}
	if coord.toolProvider != tp {
		t.Error("Expected tool provider to be set")
	}
	if coord.maxIterations != 5 {
		t.Error("Expected max iterations to be 5")
	}
	if coord.logger != logger {
		t.Error("Expected logger to be set")
	}
}

func TestCoordinator_Run(t *testing.T) {
	tests := []struct {
		name           string
		llmResponses   []Response
		llmShouldErr   bool
		tools          []tools.Tool
		maxIterations  int
		expectedResult string
		expectError    bool
	}{
		{
			name: "successful assessment",
			llmResponses: []Response{
				{ToolCalls: allToolCalls()},
				{Content: finalGoJSON},
			},
			tools:          plantTools(),
			expectedResult: finalGoJSON,
			expectError:    false,
		},
		{
			name:         "LLM error",
			llmShouldErr: true,
			tools:        []tools.Tool{},
			expectError:  true,
		},
		{
			name: "tool not found",
			llmResponses: []Response{
				{ToolCalls: []ToolCall{{Name: "pump_toggle", Args: map[string]any{}}}},
			},
			tools:       []tools.Tool{},
			expectError: true,
		},
		{
			name: "empty response error",
			llmResponses: []Response{
				{}, // Empty response
			},
			tools:       []tools.Tool{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLMClient{
				responses: tt.llmResponses,
				shouldErr: tt.llmShouldErr,
			}

			tp := &mockToolProvider{tools: tt.tools}

			logger := plantagent.NewNoOpCoordinationLogger()

			maxIter := tt.maxIterations
			if maxIter == 0 {
				maxIter = 5
			}

			coord := NewCoordinator(llm, tp, maxIter, logger, trace.NewTracerProvider())

			result, err := coord.Run(context.Background(), "Can we produce 3 batches of Product A?")

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}

			if !tt.expectError && result != tt.expectedResult {
				t.Errorf("Expected result %q, got %q", tt.expectedResult, result)
			}
		})
	}
}

func TestCoordinator_Run_PrematureFinalGetsNudged(t *testing.T) {
	tp := &mockToolProvider{tools: plantTools()}

	llm := &mockLLMClient{
		responses: []Response{
			// First call: tries to finalize without any tool results.
			{Content: finalGoJSON},
			// Second call: calls the tools after the nudge.
			{ToolCalls: allToolCalls()},
			// Third call: finalizes for real.
			{Content: finalGoJSON},
		},
	}

	coord := NewCoordinator(llm, tp, 5, plantagent.NewNoOpCoordinationLogger(), trace.NewTracerProvider())

	result, err := coord.Run(context.Background(), "Can we produce 3 batches of Product A?")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != finalGoJSON {
		t.Errorf("Expected final JSON, got %q", result)
	}
	if llm.callCount != 3 {
		t.Errorf("Expected 3 LLM invocations, got %d", llm.callCount)
	}
}

func TestCoordinator_Run_InvalidFinalJSONRetried(t *testing.T) {
	tp := &mockToolProvider{tools: plantTools()}

	llm := &mockLLMClient{
		responses: []Response{
			{ToolCalls: allToolCalls()},
			// Inconsistent verdict: decision and can_produce disagree.
			{Content: `{"decision":"go","can_produce":false,"product":"Product A","batches":3,"reasoning":"x","materials":[],"machine_states":{},"tools_used":[]}`},
			{Content: finalGoJSON},
		},
	}

	coord := NewCoordinator(llm, tp, 5, plantagent.NewNoOpCoordinationLogger(), trace.NewTracerProvider())

	result, err := coord.Run(context.Background(), "Can we produce 3 batches of Product A?")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != finalGoJSON {
		t.Errorf("Expected valid final JSON, got %q", result)
	}
}

func TestCoordinator_Run_RecipeErrorAllowsNoGoFinal(t *testing.T) {
	// Unknown product: recipe_get fails, the error is fed back, and a no-go
	// final is accepted without equipment reads.
	recipeTool := &mockTool{
		name:   "recipe_get",
		runErr: &plant.NotFoundError{Product: "Product Z"},
	}
	tp := &mockToolProvider{tools: []tools.Tool{recipeTool}}

	llm := &mockLLMClient{
		responses: []Response{
			{ToolCalls: []ToolCall{{Name: "recipe_get", Args: map[string]any{"product": "Product Z"}}}},
			{Content: finalNoGoJSON},
		},
	}

	coord := NewCoordinator(llm, tp, 5, plantagent.NewNoOpCoordinationLogger(), trace.NewTracerProvider())

	result, err := coord.Run(context.Background(), "Can we produce 3 batches of Product Z?")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != finalNoGoJSON {
		t.Errorf("Expected no-go final, got %q", result)
	}
	if recipeTool.callCount != 1 {
		t.Errorf("Expected recipe_get to be called once, was called %d times", recipeTool.callCount)
	}
}

func TestCoordinator_Run_ToolsCalledOnce(t *testing.T) {
	toolset := plantTools()
	tp := &mockToolProvider{tools: toolset}

	llm := &mockLLMClient{
		responses: []Response{
			{ToolCalls: allToolCalls()},
			{Content: finalGoJSON},
		},
	}

	coord := NewCoordinator(llm, tp, 5, plantagent.NewNoOpCoordinationLogger(), trace.NewTracerProvider())

	if _, err := coord.Run(context.Background(), "Can we produce 3 batches of Product A?"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, tool := range toolset {
		mt := tool.(*mockTool)
		if mt.callCount != 1 {
			t.Errorf("Expected %s to be called 1 time, was called %d times", mt.name, mt.callCount)
		}
	}
}

func TestDedupeToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		input    []ToolCall
		expected int
	}{
		{
			name: "no duplicates",
			input: []ToolCall{
				{Name: "recipe_get", Args: map[string]any{"product": "Product A"}},
				{Name: "tank_levels_get", Args: map[string]any{}},
			},
			expected: 2,
		},
		{
			name: "exact duplicates",
			input: []ToolCall{
				{Name: "tank_levels_get", Args: map[string]any{}},
				{Name: "tank_levels_get", Args: map[string]any{}},
			},
			expected: 1,
		},
		{
			name: "same tool different args",
			input: []ToolCall{
				{Name: "recipe_get", Args: map[string]any{"product": "Product A"}},
				{Name: "recipe_get", Args: map[string]any{"product": "Product B"}},
			},
			expected: 2,
		},
		{
			name: "mixed scenario",
			input: []ToolCall{
				{Name: "recipe_get", Args: map[string]any{"product": "Product A"}},
				{Name: "machine_states_get", Args: map[string]any{}},
				{Name: "recipe_get", Args: map[string]any{"product": "Product A"}}, // Duplicate
				{Name: "recipe_get", Args: map[string]any{"product": "Product B"}}, // Different args
			},
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := dedupeToolCalls(tt.input)

			if len(result) != tt.expected {
				t.Errorf("Expected %d calls after dedup, got %d", tt.expected, len(result))
			}
		})
	}
}
