package app

import (
	"context"
	"fmt"
	"log/slog"

	"foodbridge"
	"foodbridge/store"
)

// HotspotReport is a hunger hotspot prediction with the data it was made from.
type HotspotReport struct {
	Prediction         map[string]any               `json:"prediction"`
	Conditions         foodbridge.HotspotConditions `json:"conditions"`
	AvailableResources []foodbridge.Donation        `json:"available_resources"`
}

// PredictHotspots feeds the recorded hotspots and the per-address donation
// and request trends to the predictor. Requests are donations a recipient has
// claimed.
func (a *App) PredictHotspots(ctx context.Context) (HotspotReport, error) {
	if a.hotspots == nil {
		return HotspotReport{}, fmt.Errorf("%w: hotspot prediction is not configured", ErrUnavailable)
	}

	records, err := a.store.Find(ctx, HungerHotspots, store.Filter{}, HotspotHistory)
	if err != nil {
		return HotspotReport{}, fmt.Errorf("load hotspot history: %w", err)
	}
	history := make([]map[string]any, 0, len(records))
	for _, r := range records {
		history = append(history, r)
	}

	donations, err := a.addressTrends(ctx, store.Filter{})
	if err != nil {
		return HotspotReport{}, fmt.Errorf("donation trends: %w", err)
	}
	requests, err := a.addressTrends(ctx, store.Filter{"status": StatusMatched})
	if err != nil {
		return HotspotReport{}, fmt.Errorf("request trends: %w", err)
	}
	conditions := foodbridge.HotspotConditions{
		TimePeriod:     a.now().Format("2006-01"),
		DonationTrends: donations,
		RequestTrends:  requests,
	}

	prediction, err := a.hotspots.Predict(ctx, history, conditions)
	if err != nil {
		return HotspotReport{}, fmt.Errorf("%w: %w", ErrPredictionFailed, err)
	}
	if _, ok := prediction["hotspots"].([]any); !ok {
		slog.Warn("HOTSPOTS: Prediction has no hotspots list")
	}

	available, err := a.AvailableDonations(ctx)
	if err != nil {
		return HotspotReport{}, err
	}
	return HotspotReport{
		Prediction:         prediction,
		Conditions:         conditions,
		AvailableResources: available,
	}, nil
}

// addressTrends counts matching donations per address, busiest first.
func (a *App) addressTrends(ctx context.Context, match store.Filter) ([]map[string]any, error) {
	rows, err := a.store.Aggregate(ctx, FoodDonations, []store.Stage{
		store.MatchStage(match),
		store.GroupStage(store.Group{By: "location.address", Fields: map[string]store.Accumulator{
			"count":          {Op: store.OpCount},
			"total_quantity": {Op: store.OpSum, Field: "quantity", Number: leadingNumber},
		}}),
		store.SortStage(
			store.SortField{Field: "count", Desc: true},
			store.SortField{Field: store.IDField},
		),
	})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	return out, nil
}
