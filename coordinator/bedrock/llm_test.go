package bedrock

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

type fakeBedrockRuntime struct {
	out *bedrockruntime.ConverseOutput
	err error

	lastInput *bedrockruntime.ConverseInput
}

func (f *fakeBedrockRuntime) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = in
	return f.out, f.err
}

func converseOutput(stopReason types.StopReason, content ...types.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		StopReason: stopReason,
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{Role: types.ConversationRoleAssistant, Content: content},
		},
		Metrics: &types.ConverseMetrics{LatencyMs: aws.Int64(42)},
		Usage:   &types.TokenUsage{InputTokens: aws.Int32(100), OutputTokens: aws.Int32(50)},
	}
}

func TestNewLLMClient_Defaults(t *testing.T) {
	client := NewLLMClient(&fakeBedrockRuntime{}, LLMOptions{})

	if client.opts.ModelID != defaultModelID {
		t.Errorf("Expected default model ID, got %q", client.opts.ModelID)
	}
	if client.opts.MaxTokens != defaultMaxTokens {
		t.Errorf("Expected default max tokens, got %d", client.opts.MaxTokens)
	}

	client = NewLLMClient(&fakeBedrockRuntime{}, LLMOptions{ModelID: "custom", MaxTokens: 2048})
	if client.opts.ModelID != "custom" || client.opts.MaxTokens != 2048 {
		t.Errorf("Expected overrides to stick, got %+v", client.opts)
	}
}

func TestLLMClient_Invoke_ToolUse(t *testing.T) {
	brc := &fakeBedrockRuntime{
		out: converseOutput(types.StopReasonToolUse,
			&types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String("tu-1"),
					Name:      aws.String("recipe_get"),
					Input:     document.NewLazyDocument(map[string]any{"product": "Product A", "batches": 3.0}),
				},
			},
		),
	}

	client := NewLLMClient(brc, LLMOptions{})
	prompt, err := NewPrompt("Can we produce 3 batches of Product A?", &mockToolProvider{tools: plantTools()})
	if err != nil {
		t.Fatalf("NewPrompt failed: %v", err)
	}

	res, err := client.Invoke(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(res.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(res.ToolCalls))
	}
	call := res.ToolCalls[0]
	if call.Name != "recipe_get" || call.ToolUseID != "tu-1" {
		t.Errorf("Unexpected call identity: %+v", call)
	}
	if call.Input["product"] != "Product A" {
		t.Errorf("Expected product input, got %v", call.Input)
	}
	if call.Input["batches"] != 3 {
		t.Errorf("Expected whole float normalized to int, got %T %v", call.Input["batches"], call.Input["batches"])
	}

	// The request must carry the system block, the user task, and the tool specs.
	if len(brc.lastInput.System) != 1 {
		t.Errorf("Expected 1 system block, got %d", len(brc.lastInput.System))
	}
	if len(brc.lastInput.Messages) != 1 {
		t.Errorf("Expected 1 non-system message, got %d", len(brc.lastInput.Messages))
	}
	if len(brc.lastInput.ToolConfig.Tools) != 3 {
		t.Errorf("Expected 3 tool specs, got %d", len(brc.lastInput.ToolConfig.Tools))
	}
}

func TestLLMClient_Invoke_FinalText(t *testing.T) {
	brc := &fakeBedrockRuntime{
		out: converseOutput(types.StopReasonEndTurn,
			&types.ContentBlockMemberText{Value: finalGoJSON},
		),
	}

	client := NewLLMClient(brc, LLMOptions{})
	prompt, _ := NewPrompt("task", &mockToolProvider{tools: plantTools()})

	res, err := client.Invoke(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Content != finalGoJSON {
		t.Errorf("Expected final JSON content, got %q", res.Content)
	}
}

func TestLLMClient_Invoke_FinalNotJSON(t *testing.T) {
	brc := &fakeBedrockRuntime{
		out: converseOutput(types.StopReasonEndTurn,
			&types.ContentBlockMemberText{Value: "we should be fine"},
		),
	}

	client := NewLLMClient(brc, LLMOptions{})
	prompt, _ := NewPrompt("task", &mockToolProvider{tools: plantTools()})

	if _, err := client.Invoke(context.Background(), prompt); err == nil {
		t.Error("Expected error for a non-JSON final answer")
	}
}

func TestLLMClient_Invoke_ConverseError(t *testing.T) {
	client := NewLLMClient(&fakeBedrockRuntime{err: errors.New("throttled")}, LLMOptions{})
	prompt, _ := NewPrompt("task", &mockToolProvider{tools: plantTools()})

	if _, err := client.Invoke(context.Background(), prompt); err == nil {
		t.Error("Expected Converse error to propagate")
	}
}

func TestLLMClient_Invoke_MaxTokens(t *testing.T) {
	client := NewLLMClient(&fakeBedrockRuntime{out: converseOutput(types.StopReasonMaxTokens)}, LLMOptions{})
	prompt, _ := NewPrompt("task", &mockToolProvider{tools: plantTools()})

	if _, err := client.Invoke(context.Background(), prompt); err == nil {
		t.Error("Expected error when the model hits the token limit")
	}
}

func TestTextFromOutput_PrefersJSONBlock(t *testing.T) {
	out := converseOutput(types.StopReasonEndTurn,
		&types.ContentBlockMemberText{Value: "Here is my assessment:"},
		&types.ContentBlockMemberText{Value: `{"decision":"go"}`},
	)

	text, err := textFromOutput(out)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text != `{"decision":"go"}` {
		t.Errorf("Expected the JSON block, got %q", text)
	}
}

func TestTextFromOutput_JoinsPlainBlocks(t *testing.T) {
	out := converseOutput(types.StopReasonEndTurn,
		&types.ContentBlockMemberText{Value: "first"},
		&types.ContentBlockMemberText{Value: "second"},
	)

	text, err := textFromOutput(out)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text != "first\nsecond" {
		t.Errorf("Expected joined text, got %q", text)
	}
}

func TestBuildToolSpec(t *testing.T) {
	spec, err := buildToolSpec(Tool{
		Name:        "recipe_get",
		Description: "Retrieves the recipe for a product",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"product": {Type: "string"},
			},
			Required: []string{"product"},
		},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if aws.ToString(spec.Name) != "recipe_get" {
		t.Errorf("Expected spec name, got %q", aws.ToString(spec.Name))
	}

	var schema map[string]any
	if err := spec.InputSchema.(*types.ToolInputSchemaMemberJson).Value.UnmarshalSmithyDocument(&schema); err != nil {
		t.Fatalf("Failed to unmarshal schema document: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("Expected object schema, got %v", schema["type"])
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected any
	}{
		{"whole float to int", 3.0, 3},
		{"fractional float kept", 2.5, 2.5},
		{"plain string kept", "Product A", "Product A"},
		{"stringified object decoded", `{"batches": 3}`, map[string]any{"batches": 3}},
		{"nested map", map[string]any{"batches": 3.0, "product": "Product A"}, map[string]any{"batches": 3, "product": "Product A"}},
		{"array elements", []any{1.0, "x", 2.5}, []any{1, "x", 2.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeInput(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %#v, got %#v", tt.expected, got)
			}
		})
	}
}
