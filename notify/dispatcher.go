// Package notify delivers WhatsApp text messages with bounded retry.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"dario.cat/mergo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"foodbridge"
)

// MaxMessageLength is the longest body the messaging API accepts, in characters.
const MaxMessageLength = 1600

const ellipsis = "..."

// OpsNotifier posts operational alerts, e.g. to a Slack channel.
type OpsNotifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	OpsChannel  string
}

var defaultOptions = Options{
	MaxAttempts: 3,
	RetryDelay:  time.Second,
	OpsChannel:  "#foodbridge-ops",
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Dispatcher sends messages through a Messenger. Send never returns an error;
// failures are logged and reported to the ops channel.
type Dispatcher struct {
	messenger foodbridge.Messenger
	ops       OpsNotifier
	opts      Options
	sleep     SleepFunc

	attempts metric.Int64Counter
	sent     metric.Int64Counter
	failed   metric.Int64Counter
}

type DispatcherOption func(*Dispatcher)

// WithOps reports delivery failures to n.
func WithOps(n OpsNotifier) DispatcherOption {
	return func(d *Dispatcher) { d.ops = n }
}

// WithSleep replaces the wait between attempts.
func WithSleep(s SleepFunc) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = s }
}

func NewDispatcher(m foodbridge.Messenger, opts Options, options ...DispatcherOption) (*Dispatcher, error) {
	if err := mergo.Merge(&opts, defaultOptions); err != nil {
		return nil, fmt.Errorf("notify: apply default options: %w", err)
	}
	if opts.MaxAttempts < 1 {
		return nil, fmt.Errorf("notify: max attempts must be at least 1, got %d", opts.MaxAttempts)
	}
	if opts.RetryDelay < 0 {
		return nil, fmt.Errorf("notify: retry delay must not be negative, got %s", opts.RetryDelay)
	}

	meter := otel.Meter(foodbridge.MeterNameNotify)
	attempts, _ := meter.Int64Counter("notify_attempts_total",
		metric.WithDescription("Total number of message send attempts"))
	sent, _ := meter.Int64Counter("notify_messages_sent_total",
		metric.WithDescription("Total number of messages delivered"))
	failed, _ := meter.Int64Counter("notify_messages_failed_total",
		metric.WithDescription("Total number of messages that failed after all attempts"))

	d := &Dispatcher{
		messenger: m,
		opts:      opts,
		sleep:     sleepContext,
		attempts:  attempts,
		sent:      sent,
		failed:    failed,
	}
	for _, o := range options {
		o(d)
	}
	return d, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send normalises phone, trims and caps the message, and tries up to
// MaxAttempts times with a constant delay. It reports whether any attempt
// succeeded.
func (d *Dispatcher) Send(ctx context.Context, phone, message string) bool {
	to := NormalizePhone(phone)
	if to == "" {
		slog.Warn("NOTIFY: No destination phone number, skipping message")
		d.failed.Add(ctx, 1)
		return false
	}
	body := Truncate(strings.TrimSpace(message))

	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		d.attempts.Add(ctx, 1)
		lastErr = d.messenger.SendMessage(ctx, to, body)
		if lastErr == nil {
			slog.Info("NOTIFY: Message sent", "to", mask(to), "attempt", attempt, "length", utf8.RuneCountInString(body))
			d.sent.Add(ctx, 1)
			return true
		}

		slog.Warn("NOTIFY: Send attempt failed", "to", mask(to), "attempt", attempt, "error", lastErr)
		if attempt == d.opts.MaxAttempts {
			break
		}
		if err := d.sleep(ctx, d.opts.RetryDelay); err != nil {
			lastErr = err
			break
		}
	}

	d.failed.Add(ctx, 1)
	slog.Error("NOTIFY: Failed to send message", "to", mask(to), "attempts", d.opts.MaxAttempts, "error", lastErr)
	d.reportFailure(ctx, to, lastErr)
	return false
}

func (d *Dispatcher) reportFailure(ctx context.Context, to string, cause error) {
	if d.ops == nil {
		return
	}
	msg := fmt.Sprintf("WhatsApp delivery to %s failed after %d attempts: %v", mask(to), d.opts.MaxAttempts, cause)
	if err := d.ops.PostMessage(context.WithoutCancel(ctx), d.opts.OpsChannel, msg); err != nil {
		slog.Warn("NOTIFY: Failed to post ops alert", "error", err)
	}
}

// NormalizePhone returns phone in +<digits> form. Numbers already starting
// with "+" are kept; otherwise leading zeros are dropped and "+" prepended.
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	if p == "" || strings.HasPrefix(p, "+") {
		return p
	}
	p = strings.TrimLeft(p, "0")
	if p == "" {
		return ""
	}
	return "+" + p
}

// Truncate caps message at MaxMessageLength characters, ending in "..." when
// it was cut.
func Truncate(message string) string {
	if utf8.RuneCountInString(message) <= MaxMessageLength {
		return message
	}
	runes := []rune(message)
	return string(runes[:MaxMessageLength-len(ellipsis)]) + ellipsis
}

// mask hides all but the last four digits of a phone number in logs.
func mask(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
