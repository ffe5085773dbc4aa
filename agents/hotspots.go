package agents

import (
	"context"
	"fmt"
	"log/slog"

	"foodbridge"
	"foodbridge/parser"
)

// HotspotPredictor asks the model which areas are at risk of food insecurity.
type HotspotPredictor struct {
	model foodbridge.Model
}

func NewHotspotPredictor(model foodbridge.Model) *HotspotPredictor {
	return &HotspotPredictor{model: model}
}

// Predict returns the model's assessment. A reply without a hotspots list is
// returned as parsed, wrapped under "response" when it is not JSON.
func (p *HotspotPredictor) Predict(ctx context.Context, history []map[string]any, current foodbridge.HotspotConditions) (map[string]any, error) {
	slog.Info("HOTSPOTS: Predicting hunger hotspots",
		"history", len(history),
		"donation_areas", len(current.DonationTrends),
		"request_areas", len(current.RequestTrends))

	raw, err := submit(ctx, p.model, "predict_hotspots", hotspotSystemPrompt, hotspotPrompt(history, current))
	if err != nil {
		return nil, fmt.Errorf("predict hotspots: %w", err)
	}

	obj, _ := parser.ParseObject(raw)
	if _, ok := obj["hotspots"].([]any); !ok {
		slog.Warn("HOTSPOTS: Model reply has no hotspots list")
	}
	return obj, nil
}
