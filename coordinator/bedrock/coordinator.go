package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plantagent"
	"plantagent/plant"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Coordinator is responsible for managing the interaction between the LLM, tools, and output channel.
// It treats the model's verdict as a proposal: before accepting a final answer it
// recomputes the go/no-go decision from the tool results the model actually saw.
type Coordinator struct {
	llm            llmClient
	toolProvider   plantagent.ToolProvider
	maxIterations  int
	logger         plantagent.CoordinationLogger
	tracerProvider *trace.TracerProvider
}

type llmClient interface {
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}

// NewCoordinator initializes a new coordinator.
func NewCoordinator(llm llmClient, toolRegistry plantagent.ToolProvider, maxIterations int, logger plantagent.CoordinationLogger, tracerProvider *trace.TracerProvider) *Coordinator {
	return &Coordinator{
		llm:            llm,
		toolProvider:   toolRegistry,
		maxIterations:  maxIterations,
		logger:         logger,
		tracerProvider: tracerProvider,
	}
}

// Run executes the coordination process for a given task.
func (c *Coordinator) Run(ctx context.Context, task string) (string, error) {
	ctx, span := otel.Tracer(plantagent.TracerNameBedrock).Start(ctx, "Coordinator.Run")
	defer span.End()

	slog.Info("COORDINATOR: Starting run", "task", task)

	prompt, err := NewPrompt(task, c.toolProvider)
	if err != nil {
		return "", fmt.Errorf("failed to apply system prompt: %w", err)
	}

	var finalOut string
	captured := &capturedData{}
	toolsAlreadyCalled := make(map[string]int) // Track how many times each tool has been called

	for iter := 0; iter < c.maxIterations; iter++ {
		iterLog := plantagent.IterationLog{Iteration: iter + 1, Timestamp: time.Now()}

		// Log prompt
		if b, merr := json.Marshal(prompt); merr == nil {
			iterLog.LLMInput = string(b)
			slog.Info("COORDINATOR: Sending prompt to LLM",
				"iteration", iter+1,
				"messages_count", len(prompt.Messages),
				"tools_count", len(prompt.Tools),
				"prompt_size_bytes", len(b),
				"last_message_preview", func() string {
					text := "no content"
					if len(prompt.Messages) == 0 {
						return text
					}
					last := prompt.Messages[len(prompt.Messages)-1]
					if len(last.Content) > 0 && len(last.Content[0].Text) > 0 {
						text = last.Content[0].Text
						if len(text) > 100 {
							text = text[:97] + "..."
						}
					}
					return text
				}(),
			)
		}

		// 1) Invoke model
		res, err := c.llm.Invoke(ctx, prompt)
		if err != nil {
			iterLog.Error = err.Error()
			c.logIteration(iterLog)
			return "", fmt.Errorf("invoke failed: %w", err)
		}
		iterLog.LLMOutput = res

		slog.Info("COORDINATOR: LLM response received",
			"iteration", iter+1,
			"content_length", len(res.Content),
			"tool_calls", len(res.ToolCalls),
		)

		// If the assistant returned no tool calls, treat content as a candidate final assessment.
		if len(res.ToolCalls) == 0 {
			slog.Info("COORDINATOR: No tool calls; attempting to treat output as final assessment", "iteration", iter+1, "content_length", len(res.Content))
			finalJSON := strings.TrimSpace(res.Content)

			// Validate final JSON structure.
			if finalJSON == "" || !strings.HasPrefix(finalJSON, "{") || !strings.HasSuffix(finalJSON, "}") {
				slog.Info("COORDINATOR: Output is not valid JSON format", "iteration", iter+1, "starts_with_brace", strings.HasPrefix(finalJSON, "{"), "ends_with_brace", strings.HasSuffix(finalJSON, "}"))
				// Not a final assessment; point it back at the data-gathering tools.
				slog.Info("COORDINATOR: Requesting tools to build assessment context", "iteration", iter+1)
				prompt.Messages = append(prompt.Messages, Message{
					Role: "user",
					Content: []MessagePart{{
						Type: "text",
						Text: "Your last message was not a final assessment. Call recipe_get for the requested product, then tank_levels_get and machine_states_get, then return the final JSON.",
					}},
				})
				c.logIteration(iterLog)
				continue
			}

			// Validate shape with ProductionAssessment type.
			var pa plantagent.ProductionAssessment
			if err := json.Unmarshal([]byte(finalJSON), &pa); err != nil || !pa.IsValid() {
				slog.Info("COORDINATOR: Final JSON failed schema validation", "error", err, "iteration", iter+1)
				// Ask the model to restate as valid JSON per schema.
				msg := map[string]any{
					"error":  "invalid_final_json",
					"reason": fmt.Sprintf("parse/shape error: %v", err),
				}
				b, _ := json.Marshal(msg)
				prompt.Messages = append(prompt.Messages, Message{
					Role:    "user",
					Content: []MessagePart{{Type: "text", Text: string(b)}},
				})
				c.logIteration(iterLog)
				continue
			}

			// Recompute the verdict from the captured tool outputs.
			slog.Info("COORDINATOR: Verifying verdict against tool outputs",
				"iteration", iter+1,
				"product", pa.Product,
				"batches", pa.Batches,
				"can_produce", pa.CanProduce)

			ok, probs, verr := captured.verify(pa)
			if verr != nil {
				slog.Error("COORDINATOR: Verdict verification errored", "error", verr, "iteration", iter+1)
				msg := map[string]any{
					"error":  "verification_failed",
					"reason": verr.Error(),
				}
				b, _ := json.Marshal(msg)
				prompt.Messages = append(prompt.Messages, Message{
					Role:    "user",
					Content: []MessagePart{{Type: "text", Text: string(b)}},
				})
				c.logIteration(iterLog)
				continue
			}

			if !ok {
				// Tell the model exactly why and ask it to revise the verdict.
				slog.Warn("COORDINATOR: Verdict rejected", "iteration", iter+1, "problems", probs)
				msg := map[string]any{
					"error":   "inconsistent_verdict",
					"details": probs,
					"hint":    "Re-check required vs available per material and every machine state against the tool results already provided; then re-send the final JSON.",
				}
				b, _ := json.Marshal(msg)
				prompt.Messages = append(prompt.Messages, Message{
					Role:    "user",
					Content: []MessagePart{{Type: "text", Text: string(b)}},
				})
				iterLog.Error = "inconsistent final verdict"
				c.logIteration(iterLog)
				continue
			}

			// Verified, accept and finish.
			finalOut = finalJSON
			c.logIteration(iterLog)
			break
		}

		// Model requested tool calls: check for excessive repetition first
		var hasExcessiveRepetition bool
		for _, call := range res.ToolCalls {
			toolsAlreadyCalled[call.Name]++

			if toolsAlreadyCalled[call.Name] > 2 {
				slog.Warn("COORDINATOR: Excessive tool repetition detected", "tool", call.Name, "count", toolsAlreadyCalled[call.Name], "iteration", iter+1)
				hasExcessiveRepetition = true
				break
			}
		}

		if hasExcessiveRepetition {
			// Provide more direct guidance without executing tools
			msg := map[string]any{
				"error": "excessive_tool_repetition",
				"hint":  "You already have the recipe and plant telemetry. Compare required vs available per material, check the machine states, and provide the final JSON assessment directly.",
			}
			b, _ := json.Marshal(msg)
			prompt.Messages = append(prompt.Messages, Message{
				Role:    "user",
				Content: []MessagePart{{Type: "text", Text: string(b)}},
			})
			iterLog.Error = "excessive tool repetition"
			c.logIteration(iterLog)
			continue
		}

		// Normal tool execution path
		assistantMsg := Message{Role: "assistant", Content: MessageParts{}}
		if res.Content != "" {
			assistantMsg.Content = append(assistantMsg.Content, MessagePart{Type: "text", Text: res.Content})
		}

		for _, call := range res.ToolCalls {
			slog.Info("COORDINATOR: Handling tool call", "name", call.Name, "iteration", iter+1)
			assistantMsg.Content = append(assistantMsg.Content, MessagePart{
				Type:      "tool_use",
				ToolUseID: call.ToolUseID,
				ToolName:  call.Name,
				Data:      call.Input,
			})
		}

		prompt.Messages = append(prompt.Messages, assistantMsg)

		var toolCallLogs []plantagent.ToolCallLog
		var toolResults []ToolResult

		for _, call := range res.ToolCalls {
			tlog := plantagent.ToolCallLog{Name: call.Name, Input: call.Input}
			tool, gerr := c.toolProvider.GetTool(call.Name)
			if gerr != nil {
				tlog.Error = gerr.Error()
				toolCallLogs = append(toolCallLogs, tlog)
				toolResults = append(toolResults, ToolResult{
					ToolUseID: call.ToolUseID,
					ToolName:  call.Name,
					Data:      map[string]any{"error": fmt.Sprintf("tool %q not found: %v", call.Name, gerr)},
				})
				continue
			}

			result, rerr := tool.Run(ctx, call.Input)
			if rerr != nil {
				tlog.Error = rerr.Error()
				toolCallLogs = append(toolCallLogs, tlog)
				errData := map[string]any{
					"error":       rerr.Error(),
					"explanation": plant.ExplainFailure(rerr),
				}
				captured.capture(call.Name, errData)
				toolResults = append(toolResults, ToolResult{
					ToolUseID: call.ToolUseID,
					ToolName:  tool.Name(),
					Data:      errData,
				})
				continue
			}

			tlog.Output = result
			toolCallLogs = append(toolCallLogs, tlog)
			captured.capture(call.Name, result)
			toolResults = append(toolResults, ToolResult{
				ToolUseID: call.ToolUseID,
				ToolName:  tool.Name(),
				Data:      result,
			})
		}

		if len(toolResults) > 0 {
			prompt.Messages = append(prompt.Messages, NewToolResultMessage(toolResults))
		}

		iterLog.ToolCalls = toolCallLogs
		c.logIteration(iterLog)
	}

	if finalOut == "" {
		if failure := firstFailure(captured.recipeErr, captured.tanksErr, captured.machinesErr); failure != "" {
			return "", fmt.Errorf("no verified final assessment after %d iterations: %s", c.maxIterations, failure)
		}
		return "", fmt.Errorf("no verified final assessment after %d iterations", c.maxIterations)
	}

	return finalOut, nil
}

func (c *Coordinator) logIteration(iter plantagent.IterationLog) {
	if c.logger != nil {
		if err := c.logger.LogIteration(iter); err != nil {
			slog.Error("Failed to log coordination iteration", "error", err, "iteration", iter.Iteration)
		}
	}
}
