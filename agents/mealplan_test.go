package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodbridge"
	"foodbridge/llm/mock"
)

var profile = foodbridge.UserProfile{
	Age:                34,
	Gender:             "female",
	DietaryPreferences: []string{"Vegetarian"},
	Allergies:          []string{"Peanuts"},
	HealthGoals:        []string{"Weight Loss"},
}

const planReply = `{
  "days": {
    "Monday": {
      "breakfast": {"name": "Porridge", "ingredients": ["oats"]},
      "dinner": {"name": "Dal", "ingredients": ["lentils"], "nutrition": {"calories": 500}}
    }
  },
  "shopping_list": ["oats", "lentils"],
  "nutritional_summary": {"weekly_calories": 12000}
}`

func TestMealPlanner_Generate(t *testing.T) {
	tests := []struct {
		name        string
		model       *mock.Model
		wantFailed  bool
		wantDetails string
		check       func(t *testing.T, plan *foodbridge.MealPlan)
	}{
		{
			name:  "structured plan",
			model: mock.Texts(planReply),
			check: func(t *testing.T, plan *foodbridge.MealPlan) {
				require.Contains(t, plan.Days, "Monday")
				assert.Equal(t, "Porridge", plan.Days["Monday"].Breakfast.Name)
				assert.Nil(t, plan.Days["Monday"].Lunch)
				assert.Equal(t, []string{"oats", "lentils"}, plan.ShoppingList)
				assert.True(t, plan.IsValid())
			},
		},
		{
			name:  "fenced plan using week alias",
			model: mock.Texts("Here it is\n```json\n{\"week\": {\"Tuesday\": {\"lunch\": {\"name\": \"Soup\"}}}}\n```"),
			check: func(t *testing.T, plan *foodbridge.MealPlan) {
				assert.Equal(t, []string{"Tuesday"}, plan.OrderedDays())
			},
		},
		{
			name: "malformed meal keeps the rest of the plan",
			model: mock.Texts(`{"days": {"Monday": {
				"breakfast": {"name": "Oats", "ingredients": "oats, milk"},
				"lunch": {"name": "Dal", "ingredients": ["lentils"]},
				"dinner": "leftovers"},
				"Tuesday": ["not", "a", "day"]},
				"shopping_list": ["oats"],
				"nutritional_summary": {"weekly_calories": 14000}}`),
			check: func(t *testing.T, plan *foodbridge.MealPlan) {
				assert.Equal(t, []string{"Monday"}, plan.OrderedDays())
				monday := plan.Days["Monday"]
				assert.Equal(t, []string{"oats", "milk"}, monday.Breakfast.Ingredients)
				assert.Equal(t, []string{"lentils"}, monday.Lunch.Ingredients)
				assert.Nil(t, monday.Dinner)
				assert.Equal(t, []string{"oats"}, plan.ShoppingList)
				assert.Equal(t, 14000.0, plan.NutritionalSummary["weekly_calories"])
			},
		},
		{
			name: "days as a list",
			model: mock.Texts(`{"days": [
				{"day": "Friday", "dinner": {"name": "Stew"}},
				{"breakfast": {"name": "Toast"}}]}`),
			check: func(t *testing.T, plan *foodbridge.MealPlan) {
				assert.Equal(t, []string{"Tuesday", "Friday"}, plan.OrderedDays())
				assert.Equal(t, "Toast", plan.Days["Tuesday"].Breakfast.Name)
			},
		},
		{
			name:        "no usable meals",
			model:       mock.Texts(`{"days": "all of them", "shopping_list": ["oats"]}`),
			wantFailed:  true,
			wantDetails: "model response contained no usable meals",
		},
		{
			name:        "model failure",
			model:       mock.Failing(errors.New("timeout")),
			wantFailed:  true,
			wantDetails: "timeout",
		},
		{
			name:        "error key in reply",
			model:       mock.Texts(`{"error": "quota", "details": "daily quota exceeded"}`),
			wantFailed:  true,
			wantDetails: "daily quota exceeded",
		},
		{
			name:        "prose reply",
			model:       mock.Texts("Sorry, I cannot help with that."),
			wantFailed:  true,
			wantDetails: "model response was not structured data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewMealPlanner(tt.model).Generate(context.Background(), profile, nil)
			if tt.wantFailed {
				assert.True(t, out.Failed())
				assert.Equal(t, FailureMessage, out.Error)
				assert.Equal(t, tt.wantDetails, out.Details)
				assert.Nil(t, out.Plan)
				return
			}
			require.False(t, out.Failed(), out.Details)
			require.NotNil(t, out.Plan)
			tt.check(t, out.Plan)
		})
	}
}

func TestMealPlanner_Prompt(t *testing.T) {
	t.Run("no produce and default activity", func(t *testing.T) {
		model := mock.Texts(planReply)
		NewMealPlanner(model).Generate(context.Background(), profile, nil)

		prompt := model.Calls()[0].UserPrompt
		assert.Contains(t, prompt, "- Age: 34")
		assert.Contains(t, prompt, "- Dietary Preferences: Vegetarian")
		assert.Contains(t, prompt, "- Allergies: Peanuts")
		assert.Contains(t, prompt, "- Activity Level: moderate")
		assert.Contains(t, prompt, "None available")
	})

	t.Run("produce is capped", func(t *testing.T) {
		produce := make([]foodbridge.Produce, 60)
		for i := range produce {
			produce[i] = foodbridge.Produce{Name: fmt.Sprintf("item-%02d", i)}
		}
		model := mock.Texts(planReply)
		NewMealPlanner(model).Generate(context.Background(), profile, produce)

		prompt := model.Calls()[0].UserPrompt
		assert.Contains(t, prompt, "item-49")
		assert.NotContains(t, prompt, "item-50")
		assert.Equal(t, 1, strings.Count(prompt, `"name": "item-00"`))
	})
}

func TestNutritionEstimator_Estimate(t *testing.T) {
	items := []foodbridge.FoodItem{{Type: "Rice", Quantity: "2 kg"}}

	t.Run("structured reply", func(t *testing.T) {
		model := mock.Texts(`{"calories": 5200, "protein_g": 100, "carbs_g": 1100, "fat_g": 10}`)
		got, err := NewNutritionEstimator(model).Estimate(context.Background(), items)
		require.NoError(t, err)
		assert.Equal(t, 5200.0, got["calories"])
		assert.Contains(t, model.Calls()[0].UserPrompt, `"type": "Rice"`)
	})

	t.Run("prose reply is wrapped", func(t *testing.T) {
		got, err := NewNutritionEstimator(mock.Texts("About 5000 kcal")).Estimate(context.Background(), items)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"response": "About 5000 kcal"}, got)
	})

	t.Run("no items skips the model", func(t *testing.T) {
		model := mock.Texts()
		got, err := NewNutritionEstimator(model).Estimate(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, got["calories"])
		assert.Empty(t, model.Calls())
	})

	t.Run("model failure", func(t *testing.T) {
		_, err := NewNutritionEstimator(mock.Failing(errors.New("down"))).Estimate(context.Background(), items)
		assert.Error(t, err)
	})
}
