package agents

import (
	"context"
	"fmt"
	"log/slog"

	"foodbridge"
	"foodbridge/parser"
)

// NutritionEstimator estimates nutrient totals for rescued food items.
type NutritionEstimator struct {
	model foodbridge.Model
}

func NewNutritionEstimator(model foodbridge.Model) *NutritionEstimator {
	return &NutritionEstimator{model: model}
}

// Estimate returns the model's totals. Unstructured replies come back wrapped
// under "response". An empty item list is answered without calling the model.
func (e *NutritionEstimator) Estimate(ctx context.Context, items []foodbridge.FoodItem) (map[string]any, error) {
	if len(items) == 0 {
		return map[string]any{"calories": 0.0, "protein_g": 0.0, "carbs_g": 0.0, "fat_g": 0.0}, nil
	}

	slog.Info("NUTRITION: Estimating nutrition", "items", len(items))
	raw, err := submit(ctx, e.model, "estimate_nutrition", nutritionSystemPrompt, nutritionPrompt(items))
	if err != nil {
		return nil, fmt.Errorf("estimate nutrition: %w", err)
	}

	obj, _ := parser.ParseObject(raw)
	return obj, nil
}
