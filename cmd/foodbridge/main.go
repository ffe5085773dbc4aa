// Command foodbridge serves the HTTP API and runs maintenance tasks against
// the document store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"foodbridge"
	"foodbridge/api"
	"foodbridge/bootstrap"
	"foodbridge/store/seed"
	"foodbridge/workflow"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "foodbridge",
		Short: "Food redistribution and waste exchange service",
		Long: `Foodbridge matches surplus food with recipients and business waste with
the companies that can reuse it, plans meals from local produce and tracks
the social and environmental impact of every exchange.

Configuration is read from the environment (MODEL_PROVIDER, STORE_PATH,
TWILIO_*, SLACK_WEBHOOK_URL, OTEL_*).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(), seedCmd(), workflowCmd())
	return cmd
}

func configureLogging(level string) {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// start loads the configuration, initialises telemetry and builds the
// services. The returned cleanup closes the store and flushes telemetry.
func start(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.Services, func(), error) {
	cfg, err := bootstrap.LoadSettings()
	if err != nil {
		return nil, nil, err
	}

	_, _, otelShutdown, err := foodbridge.InitOtel(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize OpenTelemetry: %w", err)
	}

	svc, err := bootstrap.Build(ctx, cfg, opts...)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			slog.Error("SETUP: Failed to close store", "error", err)
		}
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}
	return svc, cleanup, nil
}

func serveCmd() *cobra.Command {
	var seedFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := start(ctx, bootstrap.WithRunLogger(foodbridge.NewStdoutRunLogger()))
			if err != nil {
				return err
			}
			defer cleanup()

			if seedFile != "" {
				if err := loadSeed(ctx, svc, seedFile, false); err != nil {
					return err
				}
			}

			srv := &http.Server{
				Addr:              svc.Settings.App.HTTPAddr,
				Handler:           api.NewServer(svc.App),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("API: Listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("API: Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "Seed fixture to load before serving (JSON or YAML)")
	return cmd
}

func seedCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "seed <fixture>",
		Short: "Load a JSON or YAML fixture into the store",
		Long: `Load a fixture of collections into the store. The fixture is read from
the local filesystem, or from SEED_S3_BUCKET when it is set, in which case
the argument is the object key.

Examples:
  foodbridge seed fixtures/demo.yaml
  foodbridge seed fixtures/demo.yaml --replace
  SEED_S3_BUCKET=my-bucket foodbridge seed seeds/demo.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := start(ctx, bootstrap.WithModel(nopModel{}))
			if err != nil {
				return err
			}
			defer cleanup()
			return loadSeed(ctx, svc, args[0], replace)
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Empty each fixture collection before loading it")
	return cmd
}

func loadSeed(ctx context.Context, svc *bootstrap.Services, name string, replace bool) error {
	src, err := bootstrap.SeedSource(ctx, svc.Settings.App, name)
	if err != nil {
		return err
	}
	counts, err := seed.Load(ctx, svc.Store, src, seed.Options{Replace: replace})
	if err != nil {
		return err
	}
	for coll, n := range counts {
		slog.Info("STORE: Seeded collection", "collection", coll, "records", n)
	}
	return nil
}

// nopModel stands in for the language model in commands that never run a
// workflow, so no provider credentials are needed.
type nopModel struct{}

func (nopModel) Submit(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("no model configured for this command")
}

func workflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and run the built-in workflows",
	}
	cmd.AddCommand(workflowListCmd(), workflowDescribeCmd(), workflowRunCmd())
	return cmd
}

func workflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := workflow.NewBuiltin(workflow.Deps{})
			if err != nil {
				return err
			}
			for _, name := range orch.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func workflowDescribeCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "describe <workflow>",
		Short: "Export a workflow graph",
		Long: `Export a workflow graph to Mermaid, JSON or YAML.

Examples:
  foodbridge workflow describe food_redistribution
  foodbridge workflow describe meal_planning --format yaml --output meal_planning.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := workflow.NewBuiltin(workflow.Deps{})
			if err != nil {
				return err
			}
			spec, err := orch.Describe(args[0])
			if err != nil {
				return err
			}
			data, err := spec.Render(format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "Output format: mermaid, json, yaml")
	cmd.Flags().StringVar(&output, "output", "", "Output file (default: stdout)")
	return cmd
}

func workflowRunCmd() *cobra.Command {
	var inputFile string
	var dump bool

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow with a JSON input state",
		Long: `Run a workflow once. The input state is a JSON object read from --input,
or from stdin when --input is "-". Node steps are written to RUN_LOG_DIR.

Example:
  echo '{"food_items": [{"type": "rice", "quantity": "2 kg"}]}' | \
    foodbridge workflow run impact_calculation --input -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			input, err := readInput(cmd.InOrStdin(), inputFile)
			if err != nil {
				return err
			}

			cfg, err := bootstrap.LoadSettings()
			if err != nil {
				return err
			}
			runLogger, flush, err := newRunLogger(cfg.App.RunLogDir, name)
			if err != nil {
				return err
			}
			defer func() {
				if err := flush(); err != nil {
					slog.Error("WORKFLOW: Failed to flush run log", "error", err)
				}
			}()

			svc, cleanup, err := start(ctx, bootstrap.WithRunLogger(runLogger))
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, span := otel.Tracer(foodbridge.TracerNameWorkflow).Start(ctx, "cli.workflow.run", trace.WithAttributes(
				attribute.String("workflow", name),
				attribute.String("model.provider", cfg.Model.Provider),
				attribute.String("model.id", cfg.Model.ModelID),
			))
			defer span.End()

			res, err := svc.Orchestrator.Run(ctx, name, input)
			if err != nil {
				return err
			}
			if dump {
				foodbridge.Dump(res.State)
			}

			out, err := json.MarshalIndent(map[string]any{
				"run_id": res.RunID,
				"output": res.Output,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&inputFile, "input", "", `Input state file, or "-" for stdin (default: empty state)`)
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the final workflow state")
	return cmd
}

func readInput(stdin io.Reader, path string) (workflow.State, error) {
	var data []byte
	var err error
	switch path {
	case "":
		return workflow.State{}, nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var input workflow.State
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return input, nil
}

func newRunLogger(dir, workflowName string) (foodbridge.RunLogger, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create run log dir: %w", err)
	}
	logFilePath := foodbridge.NewRunLogFilePath(dir, workflowName)
	logFile, err := os.OpenFile(filepath.Clean(logFilePath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := foodbridge.NewFileRunLogger(logFile)
	flush := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, flush, nil
}
