package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodbridge"
	"foodbridge/llm/mock"
	"foodbridge/store"
)

func TestPredictHotspots(t *testing.T) {
	model := mock.Texts(`{"hotspots": [{"location": "9 Hill Rd", "severity": 0.8}]}`)
	h := newHarness(t, model)
	ctx := context.Background()

	h.insert(t, HungerHotspots, map[string]any{"location": "Old Town", "severity": 0.4})
	h.insert(t, FoodDonations, foodbridge.Donation{Type: "Rice", Quantity: "10 kg",
		Location: foodbridge.Location{Address: "12 Main St"}, Status: StatusAvailable})
	h.insert(t, FoodDonations, foodbridge.Donation{Type: "Bread", Quantity: "5 loaves",
		Location: foodbridge.Location{Address: "12 Main St"}, Status: StatusMatched})
	h.insert(t, FoodDonations, foodbridge.Donation{Type: "Soup", Quantity: "3 l",
		Location: foodbridge.Location{Address: "9 Hill Rd"}, Status: StatusMatched})

	report, err := h.app.PredictHotspots(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2025-03", report.Conditions.TimePeriod)
	assert.Equal(t, []map[string]any{
		{store.IDField: "12 Main St", "count": 2.0, "total_quantity": 15.0},
		{store.IDField: "9 Hill Rd", "count": 1.0, "total_quantity": 3.0},
	}, report.Conditions.DonationTrends)
	assert.Equal(t, []map[string]any{
		{store.IDField: "12 Main St", "count": 1.0, "total_quantity": 5.0},
		{store.IDField: "9 Hill Rd", "count": 1.0, "total_quantity": 3.0},
	}, report.Conditions.RequestTrends)

	hotspots, ok := report.Prediction["hotspots"].([]any)
	require.True(t, ok)
	assert.Len(t, hotspots, 1)
	require.Len(t, report.AvailableResources, 1)
	assert.Equal(t, "Rice", report.AvailableResources[0].Type)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserPrompt, `"location": "Old Town"`)
	assert.Contains(t, calls[0].UserPrompt, `"_id": "9 Hill Rd"`)
}

func TestPredictHotspotsFailures(t *testing.T) {
	t.Run("model failure", func(t *testing.T) {
		h := newHarness(t, mock.Failing(errors.New("down")))
		_, err := h.app.PredictHotspots(context.Background())
		assert.ErrorIs(t, err, ErrPredictionFailed)
	})

	t.Run("no predictor configured", func(t *testing.T) {
		a := New(store.NewMemory(), nil, nil)
		_, err := a.PredictHotspots(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
