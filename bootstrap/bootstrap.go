// Package bootstrap builds the application from environment configuration.
// Both the CLI and the Lambda handler start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"foodbridge"
	"foodbridge/agents"
	"foodbridge/app"
	"foodbridge/llm/bedrock"
	"foodbridge/llm/mock"
	"foodbridge/llm/ollama"
	"foodbridge/notify"
	"foodbridge/notify/slack"
	"foodbridge/notify/twilio"
	"foodbridge/store"
	"foodbridge/store/seed"
	"foodbridge/workflow"
)

// Model providers accepted in MODEL_PROVIDER.
const (
	ProviderBedrock = "bedrock"
	ProviderOllama  = "ollama"
	ProviderMock    = "mock"
)

var ErrUnknownProvider = errors.New("unknown model provider")

// Settings is the full environment configuration.
type Settings struct {
	Model     foodbridge.ModelConfig
	App       foodbridge.AppConfig
	Messaging foodbridge.MessagingConfig
}

// LoadSettings decodes every configuration block from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	for _, target := range []any{&s.Model, &s.App, &s.Messaging} {
		if err := envdecode.Decode(target); err != nil {
			return Settings{}, fmt.Errorf("decode config: %w", err)
		}
	}
	return s, nil
}

// Services are the wired components of a running process.
type Services struct {
	App          *app.App
	Orchestrator *workflow.Orchestrator
	Store        store.Store
	Settings     Settings
}

// Close releases the store.
func (s *Services) Close() error {
	return s.Store.Close()
}

type buildOptions struct {
	runLogger  foodbridge.RunLogger
	store      store.Store
	model      foodbridge.Model
	httpClient foodbridge.HTTPClient
}

type Option func(*buildOptions)

// WithRunLogger records workflow steps to l.
func WithRunLogger(l foodbridge.RunLogger) Option {
	return func(o *buildOptions) { o.runLogger = l }
}

// WithStore uses s instead of opening the configured badger store.
func WithStore(s store.Store) Option {
	return func(o *buildOptions) { o.store = s }
}

// WithModel uses m instead of the configured provider.
func WithModel(m foodbridge.Model) Option {
	return func(o *buildOptions) { o.model = m }
}

// WithHTTPClient is used by the Ollama, Twilio and Slack clients.
func WithHTTPClient(c foodbridge.HTTPClient) Option {
	return func(o *buildOptions) { o.httpClient = c }
}

// Build wires the store, model, workflows, notifications and services.
func Build(ctx context.Context, cfg Settings, opts ...Option) (*Services, error) {
	o := buildOptions{
		runLogger:  foodbridge.NewNoOpRunLogger(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&o)
	}

	model := o.model
	if model == nil {
		var err error
		if model, err = NewModel(ctx, cfg.Model, cfg.App, o.httpClient); err != nil {
			return nil, err
		}
	}

	orch, err := workflow.NewBuiltin(workflow.Deps{
		Donations: agents.NewMatcher(model),
		Waste:     agents.NewMatcher(model),
		MealPlans: agents.NewMealPlanner(model),
		Nutrition: agents.NewNutritionEstimator(model),
	}, workflow.WithRunLogger(o.runLogger))
	if err != nil {
		return nil, fmt.Errorf("define workflows: %w", err)
	}

	dispatcher, err := NewDispatcher(cfg.Messaging, o.httpClient)
	if err != nil {
		return nil, err
	}

	st := o.store
	if st == nil {
		st, err = OpenStore(cfg.App)
		if err != nil {
			return nil, err
		}
	}

	return &Services{
		App:          app.New(st, orch, dispatcher, app.WithHotspots(agents.NewHotspotPredictor(model))),
		Orchestrator: orch,
		Store:        st,
		Settings:     cfg,
	}, nil
}

// NewModel returns the language model selected by cfg.Provider.
func NewModel(ctx context.Context, cfg foodbridge.ModelConfig, appCfg foodbridge.AppConfig, httpClient foodbridge.HTTPClient) (foodbridge.Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderBedrock:
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		slog.Info("SETUP: Using Bedrock model", "model_id", cfg.ModelID)
		client, err := bedrock.NewClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{
			ModelID:     cfg.ModelID,
			MaxTokens:   cfg.MaxTokens,
			Temperature: aws.Float32(cfg.Temperature),
			TopP:        aws.Float32(cfg.TopP),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOllama:
		slog.Info("SETUP: Using Ollama model", "model_id", cfg.ModelID, "endpoint", appCfg.BaseOllamaEndpoint)
		client, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: appCfg.BaseOllamaEndpoint,
			ModelID:      cfg.ModelID,
			HTTPClient:   httpClient,
			Options: ollama.Options{
				Temperature: float64(cfg.Temperature),
				TopP:        float64(cfg.TopP),
			},
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderMock:
		slog.Info("SETUP: Using demo model")
		return mock.Demo(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// NewDispatcher sends through Twilio when it is configured and only logs
// messages otherwise. Delivery failures go to Slack when a webhook is set.
func NewDispatcher(cfg foodbridge.MessagingConfig, httpClient foodbridge.HTTPClient) (*notify.Dispatcher, error) {
	var messenger foodbridge.Messenger = LogMessenger{}
	if cfg.TwilioConfigured() {
		tc, err := twilio.NewClient(twilio.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioWhatsAppNumber,
			BaseURL:    cfg.TwilioBaseURL,
		}, httpClient)
		if err != nil {
			return nil, err
		}
		messenger = tc
	} else {
		slog.Warn("SETUP: Twilio is not configured, messages will only be logged")
	}

	var options []notify.DispatcherOption
	if cfg.SlackWebhookURL != "" {
		options = append(options, notify.WithOps(slack.NewClient(cfg.SlackWebhookURL, httpClient)))
	}
	return notify.NewDispatcher(messenger, notify.Options{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		OpsChannel:  cfg.SlackChannel,
	}, options...)
}

// LogMessenger writes messages to the log instead of sending them.
type LogMessenger struct{}

func (LogMessenger) SendMessage(ctx context.Context, to string, body string) error {
	slog.Info("NOTIFY: Message not sent, no messaging provider configured", "to", to, "length", len(body))
	return nil
}

// OpenStore opens the badger store at cfg.StorePath, or in memory.
func OpenStore(cfg foodbridge.AppConfig) (*store.Badger, error) {
	b, err := store.OpenBadger(store.BadgerOptions{Path: cfg.StorePath, InMemory: cfg.StoreInMemory})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return b, nil
}

// SeedSource returns an S3 source when a bucket is configured and a local
// file source otherwise.
func SeedSource(ctx context.Context, cfg foodbridge.AppConfig, name string) (seed.Source, error) {
	if cfg.SeedBucket == "" {
		return seed.NewFileSource(name), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return seed.NewS3Source(s3.NewFromConfig(awsCfg), cfg.SeedBucket, name), nil
}
