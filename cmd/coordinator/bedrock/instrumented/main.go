package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"plantagent"
	"plantagent/coordinator/bedrock"
	"plantagent/slack"
	"plantagent/tools"
	"plantagent/tools/storage"
)

func main() {
	ctx := context.Background()

	var modelConfig plantagent.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var agentConfig plantagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	rs, rsCleanup, err := newRecipeSource(ctx, agentConfig)
	if err != nil {
		slog.Error("SETUP: Failed to create recipe source", "error", err)
		return
	}
	defer rsCleanup()

	es, esCleanup, err := newEquipmentSource(ctx, agentConfig)
	if err != nil {
		slog.Error("SETUP: Failed to create equipment source", "error", err)
		return
	}
	defer esCleanup()

	registry, err := tools.NewRegistry(rs, es)
	if err != nil {
		slog.Error("SETUP: Failed to create tool registry", "error", err)
		return
	}
	slog.Info("SETUP: Recipe and equipment sources initialized",
		"recipe_source", agentConfig.RecipeSource,
		"equipment_source", agentConfig.EquipmentSource,
	)

	task := argOr(1, "Can we produce 3 batches of Product A? Check the recipe, current tank levels, and machine states, then give a go or no-go decision with your reasoning.")

	logger, cleanup, err := newCoordinationLogger(modelConfig.ModelID)
	if err != nil {
		slog.Error("Failed to create coordination logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush coordination log", "error", err)
		}
	}()

	brc, err := newBedrockRuntimeClient(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to create Bedrock client", "error", err)
		return
	}

	opts := bedrock.LLMOptions{
		ModelID:   modelConfig.ModelID,
		MaxTokens: modelConfig.MaxTokens,
		TopP:      modelConfig.TopP,
	}

	llm := bedrock.NewLLMClient(brc, opts)

	tracerProvider, meterProvider, otelShutdown, err := plantagent.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	_ = meterProvider
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(plantagent.TracerNameBedrock)
	ctx, span := tracer.Start(ctx, plantagent.TracerNameBedrock, trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Int("model.max_tokens", int(modelConfig.MaxTokens)),
		attribute.Float64("model.temperature", float64(modelConfig.Temperature)),
		attribute.Float64("model.top_p", float64(modelConfig.TopP)),
	))
	defer span.End()

	output, err := bedrock.NewCoordinator(
		llm,
		registry,
		agentConfig.MaxIterations,
		logger,
		tracerProvider).Run(ctx, task)
	if err != nil {
		slog.Error("RESULT: Error handling task", "error", err)
		return
	}

	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body) // nolint: errcheck
		slog.Info("FINAL: Received request",
			"method", r.Method,
			"path", r.URL.Path,
			"header", r.Header,
			"body", body.String(),
		)
		w.WriteHeader(http.StatusOK)
	}))
	defer testServer.Close()

	slackClient := slack.NewClient(testServer.URL, http.DefaultClient)

	var pa plantagent.ProductionAssessment
	if uerr := json.Unmarshal([]byte(output), &pa); uerr == nil && pa.IsValid() {
		err = slackClient.PostAssessment(ctx, "#production", pa)
	} else {
		err = slackClient.PostMessage(ctx, "#production", output)
	}
	if err != nil {
		slog.Error("Failed to post result to Slack", "error", err)
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func newRecipeSource(ctx context.Context, cfg plantagent.AgentConfig) (storage.RecipeSource, func(), error) {
	switch cfg.RecipeSource {
	case "postgres":
		src, err := storage.NewPostgresRecipeSource(ctx, cfg.RecipeDSN, cfg.RecipeTimeout)
		if err != nil {
			return nil, func() {}, err
		}
		return src, src.Close, nil
	case "file", "":
		return storage.NewFileRecipeSource(cfg.ArtifactsRecipesPath), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown recipe source %q", cfg.RecipeSource)
	}
}

func newEquipmentSource(ctx context.Context, cfg plantagent.AgentConfig) (storage.EquipmentSource, func(), error) {
	switch cfg.EquipmentSource {
	case "opcua":
		nodes, err := storage.LoadNodeMap(cfg.PlantNodesPath)
		if err != nil {
			return nil, func() {}, err
		}
		src := storage.NewOPCUAEquipmentSource(cfg.OPCEndpoint, nodes, cfg.OPCTimeout)
		if err := src.Connect(ctx); err != nil {
			return nil, func() {}, err
		}
		return src, func() {
			if err := src.Close(context.Background()); err != nil {
				slog.Error("SETUP: Failed to close OPC UA session", "error", err)
			}
		}, nil
	case "file", "":
		return storage.NewFileEquipmentSource(cfg.ArtifactsEquipmentPath), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown equipment source %q", cfg.EquipmentSource)
	}
}

func newCoordinationLogger(modelID string) (plantagent.CoordinationLogger, func() error, error) {
	logFilePath := plantagent.NewCoordinationLogFilePath(modelID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := plantagent.NewFileCoordinationLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
