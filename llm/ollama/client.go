// Package ollama implements the language-model collaborator on a local Ollama
// server's /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"dario.cat/mergo"

	"foodbridge"
)

// Options are the model options sent with every request. Zero fields take the
// package defaults.
type Options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

var defaultOptions = Options{
	Temperature:   0.7,
	TopP:          0.9,
	RepeatPenalty: 1.05,
	NumCtx:        16384,
}

type Client struct {
	endpoint   string
	model      string
	httpClient foodbridge.HTTPClient
	options    Options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   foodbridge.HTTPClient
	Options      Options
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, fmt.Errorf("ollama: model id is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	options := opts.Options
	if err := mergo.Merge(&options, defaultOptions); err != nil {
		return nil, fmt.Errorf("ollama: apply default options: %w", err)
	}

	return &Client{
		model:      opts.ModelID,
		httpClient: opts.HTTPClient,
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options:    options,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options,omitempty"`
}

type wireResponse struct {
	Message message `json:"message"`
	// other metadata omitted but available
}

// Submit sends the system and user prompts as a non-streaming chat request and
// returns the assistant's content verbatim.
func (c *Client) Submit(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.model, "prompt_len", len(userPrompt))

	msgs := make([]message, 0, 2)
	if sp := strings.TrimSpace(systemPrompt); sp != "" {
		msgs = append(msgs, message{Role: "system", Content: sp})
	}
	msgs = append(msgs, message{Role: "user", Content: userPrompt})

	reqBytes, err := json.Marshal(wireRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Options:  c.options,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM_CLIENT: %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		slog.Warn("LLM_CLIENT: decode failed, returning raw", "err", err, "body_len", len(body))
		return string(body), nil
	}

	return wr.Message.Content, nil
}
