// Package bedrock implements the language-model collaborator on the Amazon
// Bedrock Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dario.cat/mergo"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// Meal plans are long; a week of three meals with ingredients needs the room.
	defaultMaxTokens = 4096

	defaultTemperature = 0.7

	defaultTopP = 0.9
)

var (
	ErrMaxTokens = errors.New("model hit MaxTokens limit")
	ErrFiltered  = errors.New("model response blocked by Bedrock safety filters")
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options are the inference settings. Temperature and TopP are pointers so
// that an explicit zero is sent; nil takes the default.
type Options struct {
	ModelID     string
	MaxTokens   int32
	Temperature *float32
	TopP        *float32
}

var defaultOptions = Options{
	ModelID:     defaultModelID,
	MaxTokens:   defaultMaxTokens,
	Temperature: aws.Float32(defaultTemperature),
	TopP:        aws.Float32(defaultTopP),
}

// Client submits a single system + user exchange to Bedrock and returns the
// assistant's text.
type Client struct {
	brc  bedrockRuntimeClient
	opts Options
}

func NewClient(brc bedrockRuntimeClient, opts Options) (*Client, error) {
	if err := mergo.Merge(&opts, defaultOptions, mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("bedrock: apply default options: %w", err)
	}
	return &Client{
		brc:  brc,
		opts: opts,
	}, nil
}

// Submit sends systemPrompt and userPrompt as one conversation turn.
func (c *Client) Submit(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.opts.ModelID, "prompt_len", len(userPrompt))

	var sys []types.SystemContentBlock
	if strings.TrimSpace(systemPrompt) != "" {
		sys = append(sys, &types.SystemContentBlockMemberText{Value: systemPrompt})
	}

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.opts.ModelID),
		System:  sys,
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: userPrompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: c.opts.Temperature,
			TopP:        c.opts.TopP,
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "error", err)
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	if out.Usage != nil {
		attrs = append(attrs,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}
	slog.Info("LLM_CLIENT: Bedrock invoke succeeded", attrs...)

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MAX_TOKENS")
		return "", ErrMaxTokens

	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return "", ErrFiltered
	}

	text := textFromOutput(out)
	slog.Info("LLM_CLIENT: Extracted text", "text_len", len(text))
	return text, nil
}

// textFromOutput joins the assistant's text blocks with newlines.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	return strings.Join(texts, "\n")
}
