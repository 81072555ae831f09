package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"plantagent"
	"plantagent/coordinator/bedrock"
	"plantagent/tools"
	"plantagent/tools/storage"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
)

type Params struct {
	Task string `json:"task"`
}

type Results struct {
	Output any `json:"output"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig plantagent.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		var agentConfig plantagent.AgentConfig
		if err := envdecode.Decode(&agentConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		// S3 config from env
		s3Bucket := os.Getenv("ARTIFACTS_S3_BUCKET")
		recipesKey := os.Getenv("ARTIFACTS_RECIPES_S3_KEY")
		if s3Bucket == "" || recipesKey == "" {
			return Results{}, fmt.Errorf("missing S3 config: ARTIFACTS_S3_BUCKET and ARTIFACTS_RECIPES_S3_KEY must be set")
		}

		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)

		rs := storage.NewS3RecipeSource(s3Client, s3Bucket, recipesKey)

		nodes, err := storage.LoadNodeMap(agentConfig.PlantNodesPath)
		if err != nil {
			slog.Error("SETUP: Failed to load plant node map", "error", err)
			return Results{}, err
		}

		es := storage.NewOPCUAEquipmentSource(agentConfig.OPCEndpoint, nodes, agentConfig.OPCTimeout)
		if err := es.Connect(ctx); err != nil {
			slog.Error("SETUP: Failed to connect to OPC UA endpoint", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := es.Close(ctx); err != nil {
				slog.Error("SETUP: Failed to close OPC UA session", "error", err)
			}
		}()

		registry, err := tools.NewRegistry(rs, es)
		if err != nil {
			slog.Error("SETUP: Failed to create tool registry", "error", err)
			return Results{}, err
		}
		slog.Info("SETUP: S3 recipe source and OPC UA equipment source initialized",
			"bucket", s3Bucket,
			"opc_endpoint", agentConfig.OPCEndpoint,
		)

		coordinationLogger := plantagent.NewStdoutCoordinationLogger()

		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to create Bedrock client", "error", err)
			return Results{}, err
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
			return Results{}, err
		}
		_ = meterProvider
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		output, err := bedrock.NewCoordinator(
			llm,
			registry,
			agentConfig.MaxIterations,
			coordinationLogger,
			tracerProvider).Run(ctx, params.Task)
		if err != nil {
			slog.Error("RESULT: Error handling task", "error", err)
			return Results{}, err
		}

		return Results{Output: output}, nil
	}

	lambda.Start(fn)
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
