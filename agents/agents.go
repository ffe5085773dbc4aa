// Package agents builds the language-model requests behind matching, meal
// planning and nutrition estimates, and turns the replies into typed results.
package agents

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"foodbridge"
	"foodbridge/parser"
)

// submit calls the model inside a span named after the request kind.
func submit(ctx context.Context, model foodbridge.Model, kind, system, user string) (string, error) {
	ctx, span := otel.Tracer(foodbridge.TracerNameAgents).Start(ctx, "agents."+kind,
		trace.WithAttributes(attribute.Int("prompt.length", len(user))),
	)
	defer span.End()

	raw, err := model.Submit(ctx, system, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("response.length", len(raw)))
	return raw, nil
}

// Matcher asks the model to pick the best candidate for an offer.
type Matcher struct {
	model foodbridge.Model
}

func NewMatcher(model foodbridge.Model) *Matcher {
	return &Matcher{model: model}
}

// MatchDonation selects a recipient for d. The returned id is not checked
// against recipients. An empty id means the model found no match.
func (m *Matcher) MatchDonation(ctx context.Context, d foodbridge.Donation, recipients []foodbridge.Recipient) (foodbridge.MatchResult, error) {
	slog.Info("MATCHER: Matching donation", "type", d.Type, "candidates", len(recipients))

	raw, err := submit(ctx, m.model, "match_donation", donationSystemPrompt, donationPrompt(d, recipients))
	if err != nil {
		return foodbridge.MatchResult{}, fmt.Errorf("match donation: %w", err)
	}

	res := toMatchResult(raw)
	slog.Info("MATCHER: Donation matched", "recipient_id", res.RecipientID, "found", res.Found())
	return res, nil
}

// MatchWaste selects a receiving business for w.
func (m *Matcher) MatchWaste(ctx context.Context, w foodbridge.WasteListing, users []foodbridge.WasteUser) (foodbridge.MatchResult, error) {
	slog.Info("MATCHER: Matching waste", "type", w.Type, "candidates", len(users))

	raw, err := submit(ctx, m.model, "match_waste", wasteSystemPrompt, wastePrompt(w, users))
	if err != nil {
		return foodbridge.MatchResult{}, fmt.Errorf("match waste: %w", err)
	}

	res := toMatchResult(raw)
	slog.Info("MATCHER: Waste matched", "user_id", res.UserID, "found", res.Found())
	return res, nil
}

func toMatchResult(raw string) foodbridge.MatchResult {
	obj, ok := parser.ParseObject(raw)
	if !ok {
		slog.Warn("MATCHER: Model reply had no structured data")
		return foodbridge.MatchResult{Raw: obj}
	}
	return foodbridge.MatchResult{
		RecipientID:   stringField(obj, "recipient_id"),
		UserID:        stringField(obj, "user_id"),
		Justification: stringField(obj, "justification"),
		Raw:           obj,
	}
}

// stringField reads key from obj, rendering non-string scalars as text.
func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}
