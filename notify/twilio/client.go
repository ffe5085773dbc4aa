// Package twilio sends WhatsApp messages through the Twilio Messages REST API.
package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
)

const DefaultBaseURL = "https://api.twilio.com"

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	AccountSID string
	AuthToken  string
	// FromNumber is the WhatsApp-enabled sender, e.g. +14155238886.
	FromNumber string
	BaseURL    string
}

type Client struct {
	cfg        Config
	endpoint   string
	httpClient doer
}

func NewClient(cfg Config, httpClient doer) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio: account sid, auth token and sender number are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		cfg:        cfg,
		endpoint:   fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.AccountSID)),
		httpClient: httpClient,
	}, nil
}

// APIError is the error body Twilio returns with non-2xx responses.
type APIError struct {
	Status   int    `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d (code %d): %s", e.Status, e.Code, e.Message)
}

type messageResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// SendMessage sends body to the E.164 number to over WhatsApp.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+c.cfg.FromNumber)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(data, apiErr); jerr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	var msg messageResource
	if err := json.Unmarshal(data, &msg); err == nil {
		slog.Debug("TWILIO: Message queued", "sid", msg.SID, "status", msg.Status)
	}
	return nil
}
