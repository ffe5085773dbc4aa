// Command foodbridge-lambda runs one built-in workflow per Lambda invocation.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	"foodbridge"
	"foodbridge/bootstrap"
	"foodbridge/store/seed"
	"foodbridge/workflow"
)

type Params struct {
	Workflow string         `json:"workflow"`
	Input    workflow.State `json:"input"`
}

type Results struct {
	RunID  string         `json:"run_id"`
	Output workflow.State `json:"output"`
}

type runner interface {
	Run(ctx context.Context, name string, input workflow.State) (workflow.Result, error)
}

func handler(r runner) func(ctx context.Context, params Params) (Results, error) {
	return func(ctx context.Context, params Params) (Results, error) {
		if params.Workflow == "" {
			return Results{}, fmt.Errorf("missing workflow name")
		}
		res, err := r.Run(ctx, params.Workflow, params.Input)
		if err != nil {
			slog.Error("RESULT: Error running workflow", "workflow", params.Workflow, "error", err)
			return Results{}, err
		}
		return Results{RunID: res.RunID, Output: res.Output}, nil
	}
}

func main() {
	ctx := context.Background()

	cfg, err := bootstrap.LoadSettings()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}
	// Lambda has no persistent disk.
	cfg.App.StoreInMemory = true

	_, _, otelShutdown, err := foodbridge.InitOtel(ctx)
	if err != nil {
		log.Fatalf("SETUP: Failed to initialize OpenTelemetry: %s", err)
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	svc, err := bootstrap.Build(ctx, cfg, bootstrap.WithRunLogger(foodbridge.NewStdoutRunLogger()))
	if err != nil {
		log.Fatalf("SETUP: Failed to build services: %s", err)
	}
	defer svc.Close()

	if cfg.App.SeedBucket != "" && cfg.App.SeedKey != "" {
		src, err := bootstrap.SeedSource(ctx, cfg.App, cfg.App.SeedKey)
		if err != nil {
			log.Fatalf("SETUP: Failed to create seed source: %s", err)
		}
		counts, err := seed.Load(ctx, svc.Store, src, seed.Options{})
		if err != nil {
			log.Fatalf("SETUP: Failed to load seed data from S3: %s", err)
		}
		slog.Info("SETUP: Seed data loaded from S3", "collections", len(counts))
	}

	lambda.Start(handler(svc.Orchestrator))
}
