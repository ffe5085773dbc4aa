package foodbridge

import "time"

type ModelConfig struct {
	Provider    string  `env:"MODEL_PROVIDER,default=bedrock"`
	ModelID     string  `env:"MODEL_ID,default=us.anthropic.claude-3-7-sonnet-20250219-v1:0"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=4096"`
	Temperature float32 `env:"TEMPERATURE,default=0.7"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type AppConfig struct {
	HTTPAddr           string `env:"HTTP_ADDR,default=:8080"`
	StorePath          string `env:"STORE_PATH,default=data/foodbridge"`
	StoreInMemory      bool   `env:"STORE_IN_MEMORY,default=false"`
	BaseOllamaEndpoint string `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	RunLogDir          string `env:"RUN_LOG_DIR,default=logs"`
	SeedBucket         string `env:"SEED_S3_BUCKET"`
	SeedKey            string `env:"SEED_S3_KEY"`
}

type MessagingConfig struct {
	TwilioAccountSID     string        `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string        `env:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppNumber string        `env:"TWILIO_WHATSAPP_NUMBER"`
	TwilioBaseURL        string        `env:"TWILIO_BASE_URL,default=https://api.twilio.com"`
	MaxAttempts          int           `env:"NOTIFY_MAX_ATTEMPTS,default=3"`
	RetryDelay           time.Duration `env:"NOTIFY_RETRY_DELAY,default=1s"`
	SlackWebhookURL      string        `env:"SLACK_WEBHOOK_URL"`
	SlackChannel         string        `env:"SLACK_CHANNEL,default=#foodbridge-ops"`
}

// TwilioConfigured reports whether all Twilio credentials are present.
func (c MessagingConfig) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppNumber != ""
}
