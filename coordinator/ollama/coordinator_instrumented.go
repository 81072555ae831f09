package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plantagent"
	"plantagent/plant"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedCoordinator is an instrumented version of the Coordinator with comprehensive observability metrics.
type InstrumentedCoordinator struct {
	llm           llmClient
	toolProvider  plantagent.ToolProvider
	maxIterations int
	logger        plantagent.CoordinationLogger
	tracer        trace.Tracer
	meter         metric.Meter
}

// NewInstrumentedCoordinator initializes a new instrumented coordinator.
func NewInstrumentedCoordinator(llm llmClient, tp plantagent.ToolProvider, maxIter int, log plantagent.CoordinationLogger, tracer trace.Tracer, meter metric.Meter) *InstrumentedCoordinator {
	return &InstrumentedCoordinator{
		llm:           llm,
		toolProvider:  tp,
		maxIterations: maxIter,
		logger:        log,
		tracer:        tracer,
		meter:         meter,
	}
}

// Run executes the coordination process for a given task with full instrumentation.
func (c *InstrumentedCoordinator) Run(ctx context.Context, task string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "InstrumentedCoordinator.Run")
	defer span.End()

	slog.Info("COORDINATOR: Starting instrumented run", "task", task)

	// Initialize all metrics
	runsCounter, _ := c.meter.Int64Counter("assistant_runs_total",
		metric.WithDescription("Total number of assessment runs started"))
	runsCompletedCounter, _ := c.meter.Int64Counter("assistant_runs_completed_total",
		metric.WithDescription("Total number of assessment runs completed successfully"))
	runsFailedCounter, _ := c.meter.Int64Counter("assistant_runs_failed_total",
		metric.WithDescription("Total number of assessment runs that failed"))
	toolCallsCounter, _ := c.meter.Int64Counter("tool_calls_total",
		metric.WithDescription("Total number of tool calls executed"))
	toolCallsFailedCounter, _ := c.meter.Int64Counter("tool_calls_failed_total",
		metric.WithDescription("Total number of tool calls that failed"))
	iterationCounter, _ := c.meter.Int64Counter("assistant_iterations_total",
		metric.WithDescription("Total number of coordination iterations"))
	messageCounter, _ := c.meter.Int64Counter("assistant_messages_total",
		metric.WithDescription("Total number of messages in coordination"))

	// Gauges
	promptSizeGauge, _ := c.meter.Int64Gauge("prompt_size_bytes",
		metric.WithDescription("Size of the prompt sent to LLM in bytes"))
	responseContentLengthGauge, _ := c.meter.Int64Gauge("response_content_length",
		metric.WithDescription("Length of the response content from LLM"))
	messagesInConversationGauge, _ := c.meter.Int64Gauge("messages_in_conversation",
		metric.WithDescription("Number of messages in the current conversation"))
	toolsAvailableGauge, _ := c.meter.Int64Gauge("tools_available_count",
		metric.WithDescription("Number of tools available to the coordinator"))

	// Histograms
	coordinationDurationHist, _ := c.meter.Float64Histogram("coordination_duration_seconds",
		metric.WithDescription("Total duration of coordination process in seconds"))
	iterationDurationHist, _ := c.meter.Float64Histogram("iteration_duration_seconds",
		metric.WithDescription("Duration of individual coordination iterations in seconds"))
	llmResponseTimeHist, _ := c.meter.Float64Histogram("llm_response_time_seconds",
		metric.WithDescription("Time taken to receive response from LLM in seconds"))
	toolExecutionTimeHist, _ := c.meter.Float64Histogram("tool_execution_time_seconds",
		metric.WithDescription("Time taken to execute individual tools in seconds"))

	// Ollama-specific counters
	toolDeduplicationsCounter, _ := c.meter.Int64Counter("tool_deduplications_total",
		metric.WithDescription("Total number of tool call deduplications performed"))
	missingToolResultsCounter, _ := c.meter.Int64Counter("missing_tool_results_total",
		metric.WithDescription("Total number of times required tool results were missing"))
	validFinalResponsesCounter, _ := c.meter.Int64Counter("valid_final_responses_total",
		metric.WithDescription("Total number of valid final assessments received"))
	emptyResponsesCounter, _ := c.meter.Int64Counter("empty_responses_total",
		metric.WithDescription("Total number of empty responses received from LLM"))

	// Record initial run
	runsCounter.Add(ctx, 1)

	// Set static gauges
	toolsAvailableGauge.Record(ctx, int64(len(c.toolProvider.GetTools())))

	prompt, err := NewPrompt(task, c.toolProvider)
	if err != nil {
		runsFailedCounter.Add(ctx, 1)
		span.SetStatus(codes.Error, "Failed to create prompt")
		span.RecordError(err)
		return "", fmt.Errorf("failed to apply system prompt: %w", err)
	}

	plain := &Coordinator{toolProvider: c.toolProvider}

	var finalOut string

	coordinationStartTime := time.Now()

	for iter := 0; iter < c.maxIterations; iter++ {
		iterationStartTime := time.Now()
		ctx, span := c.tracer.Start(ctx, fmt.Sprintf("InstrumentedCoordinator.Run.Iteration.%d", iter+1))
		defer span.End()

		iterationCounter.Add(ctx, 1)
		iterLog := plantagent.IterationLog{Iteration: iter + 1, Timestamp: time.Now()}

		// Log prompt and record metrics
		if promptJSON, merr := json.Marshal(prompt); merr == nil {
			iterLog.LLMInput = string(promptJSON)
			promptSizeGauge.Record(ctx, int64(len(promptJSON)))
			messagesInConversationGauge.Record(ctx, int64(len(prompt.Messages)))

			slog.Info("COORDINATOR: Sending prompt to LLM",
				"iteration", iter+1,
				"messages_count", len(prompt.Messages),
				"tools_count", len(prompt.Tools),
				"prompt_size_bytes", len(promptJSON),
			)

			span.AddEvent("Sending prompt to LLM", trace.WithAttributes(
				attribute.Int("iteration", iter+1),
				attribute.Int("messages_count", len(prompt.Messages)),
				attribute.Int("tools_count", len(prompt.Tools)),
				attribute.Int("prompt_size_bytes", len(promptJSON)),
			))
		}

		// 1) Invoke model
		llmStartTime := time.Now()
		res, err := c.llm.Invoke(ctx, prompt)
		llmDuration := time.Since(llmStartTime)
		llmResponseTimeHist.Record(ctx, llmDuration.Seconds())

		if err != nil {
			iterLog.Error = err.Error()
			c.logIteration(iterLog)
			runsFailedCounter.Add(ctx, 1)
			span.SetStatus(codes.Error, "LLM invoke failed")
			span.RecordError(err)
			return finalOut, fmt.Errorf("failed to invoke LLM: %w", err)
		}
		iterLog.LLMOutput = res

		span.AddEvent("LLM response received", trace.WithAttributes(
			attribute.Int("response_content_length", len(res.Content)),
			attribute.Int("response_tool_calls_length", len(res.ToolCalls)),
			attribute.Float64("llm_response_time_seconds", llmDuration.Seconds()),
		))

		responseContentLengthGauge.Record(ctx, int64(len(res.Content)))
		messageCounter.Add(ctx, int64(len(prompt.Messages)+1)) // +1 for the response message

		slog.Info("COORDINATOR: LLM response received",
			"iteration", iter+1,
			"content_length", len(res.Content),
			"tool_calls", len(res.ToolCalls),
			"llm_response_time_ms", llmDuration.Milliseconds(),
		)

		// 2a) Final JSON path (no tool calls)
		if len(res.ToolCalls) == 0 && res.Content != "" {
			if !plain.haveRequiredResults(&prompt) {
				missingToolResultsCounter.Add(ctx, 1)
				slog.Info("COORDINATOR: Missing required tool results; nudging model to call tools", "iteration", iter+1)

				prompt.Messages = append(prompt.Messages,
					Message{
						Role:    "user",
						Content: "Before finalizing, call recipe_get (with the product name), then tank_levels_get and machine_states_get. Then use those results and return ONLY the final JSON object.",
					},
				)
				c.logIteration(iterLog)
				continue
			}

			var pa plantagent.ProductionAssessment
			if err := json.Unmarshal([]byte(strings.TrimSpace(res.Content)), &pa); err != nil || !pa.IsValid() {
				slog.Info("COORDINATOR: Final JSON failed schema validation", "error", err, "iteration", iter+1)
				msg := map[string]any{
					"error":  "invalid_final_json",
					"reason": fmt.Sprintf("parse/shape error: %v", err),
					"hint":   "Return ONE JSON object matching the output contract, with decision and can_produce in agreement.",
				}
				b, _ := json.Marshal(msg)
				prompt.Messages = append(prompt.Messages, Message{Role: "user", Content: string(b)})
				c.logIteration(iterLog)
				continue
			}

			validFinalResponsesCounter.Add(ctx, 1)
			runsCompletedCounter.Add(ctx, 1)
			slog.Info("COORDINATOR: Content looks final; ending run", "iteration", iter+1)
			finalOut = res.Content
			iterationDurationHist.Record(ctx, time.Since(iterationStartTime).Seconds())
			c.logIteration(iterLog)
			coordinationDurationHist.Record(ctx, time.Since(coordinationStartTime).Seconds())

			span.AddEvent("Valid final assessment accepted")
			break
		}

		// 2b) Tool-call path
		if len(res.ToolCalls) == 0 && res.Content == "" {
			emptyResponsesCounter.Add(ctx, 1)
			err := fmt.Errorf("no tool_calls and no final content")
			iterLog.Error = err.Error()
			c.logIteration(iterLog)
			runsFailedCounter.Add(ctx, 1)
			span.SetStatus(codes.Error, "Empty response received")
			span.RecordError(err)
			return "", err
		}

		var toolCallLogs []plantagent.ToolCallLog

		originalToolCallCount := len(res.ToolCalls)
		toolCalls := dedupeToolCalls(res.ToolCalls)
		if deduplicated := originalToolCallCount - len(toolCalls); deduplicated > 0 {
			toolDeduplicationsCounter.Add(ctx, int64(deduplicated))
			slog.Info("COORDINATOR: Deduped tool calls", "requested", originalToolCallCount, "kept", len(toolCalls))

			span.AddEvent("Tool calls deduplicated", trace.WithAttributes(
				attribute.Int("original_count", originalToolCallCount),
				attribute.Int("final_count", len(toolCalls)),
			))
		}

		for _, call := range toolCalls {
			slog.Info("COORDINATOR: Handling tool call", "name", call.Name, "iteration", iter+1)

			toolCallsCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool_name", call.Name),
			))

			toolLog := plantagent.ToolCallLog{Name: call.Name, Input: call.Args}

			tool, err := c.toolProvider.GetTool(call.Name)
			if err != nil {
				toolCallsFailedCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("tool_name", call.Name),
					attribute.String("error_type", "tool_not_found"),
				))
				toolLog.Error = err.Error()
				toolCallLogs = append(toolCallLogs, toolLog)
				iterLog.ToolCalls = toolCallLogs
				c.logIteration(iterLog)
				runsFailedCounter.Add(ctx, 1)
				span.SetStatus(codes.Error, "Tool not found")
				span.RecordError(err)
				return finalOut, fmt.Errorf("failed to get tool %q: %w", call.Name, err)
			}

			toolStartTime := time.Now()
			result, err := tool.Run(ctx, call.Args)
			toolExecutionTimeHist.Record(ctx, time.Since(toolStartTime).Seconds(), metric.WithAttributes(
				attribute.String("tool_name", call.Name),
			))

			if err != nil {
				toolCallsFailedCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("tool_name", call.Name),
					attribute.String("error_type", "tool_execution_failed"),
				))
				toolLog.Error = err.Error()
				result = map[string]any{
					"error":       err.Error(),
					"explanation": plant.ExplainFailure(err),
				}
				slog.Warn("COORDINATOR: Tool failed; feeding error back to model", "name", call.Name, "error", err)
			}

			toolLog.Output = result
			toolCallLogs = append(toolCallLogs, toolLog)

			payload, err := json.Marshal(result)
			if err != nil {
				iterLog.Error = fmt.Sprintf("failed to marshal tool result: %v", err)
				c.logIteration(iterLog)
				runsFailedCounter.Add(ctx, 1)
				span.SetStatus(codes.Error, "Tool result marshal failed")
				span.RecordError(err)
				return finalOut, fmt.Errorf("failed to marshal tool result: %w", err)
			}

			prompt.Messages = append(
				prompt.Messages,
				Message{
					Role:    "tool",
					Name:    tool.Name(),
					Content: string(payload),
				},
			)

			slog.Info("COORDINATOR: Tool executed, appended message", "name", call.Name, "iteration", iter+1)
		}

		iterationDurationHist.Record(ctx, time.Since(iterationStartTime).Seconds())
		iterLog.ToolCalls = toolCallLogs
		c.logIteration(iterLog)
	}

	return finalOut, nil
}

// logIteration logs a step using the configured logger, handling errors gracefully
func (c *InstrumentedCoordinator) logIteration(iteration plantagent.IterationLog) {
	if c.logger != nil {
		if err := c.logger.LogIteration(iteration); err != nil {
			slog.Error("Failed to log coordination iteration", "error", err, "iteration", iteration.Iteration)
		}
	}
}
