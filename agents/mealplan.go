package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"foodbridge"
	"foodbridge/parser"
)

// FailureMessage is the Error of every failed MealPlanOutcome.
const FailureMessage = "Failed to generate meal plan"

// MealPlanner generates weekly meal plans.
type MealPlanner struct {
	model foodbridge.Model
}

func NewMealPlanner(model foodbridge.Model) *MealPlanner {
	return &MealPlanner{model: model}
}

// Generate never returns an error; failures are reported in the outcome.
func (p *MealPlanner) Generate(ctx context.Context, profile foodbridge.UserProfile, produce []foodbridge.Produce) foodbridge.MealPlanOutcome {
	slog.Info("MEAL_PLANNER: Generating meal plan", "produce", len(produce), "activity_level", profile.ActivityLevel)

	raw, err := submit(ctx, p.model, "generate_meal_plan", mealPlanSystemPrompt, mealPlanPrompt(profile, produce))
	if err != nil {
		slog.Error("MEAL_PLANNER: Model call failed", "error", err)
		return failed(err.Error(), nil)
	}

	parsed := parser.Parse(raw)
	obj, isObject := parsed.(map[string]any)
	switch {
	case !isObject:
		return failed("model returned a non-object response", parsed)
	case parser.IsWrapped(obj):
		return failed("model response was not structured data", parsed)
	case obj["error"] != nil:
		return failed(detailsOf(obj), parsed)
	}

	plan := decodePlan(obj)
	if !plan.IsValid() {
		slog.Warn("MEAL_PLANNER: Plan has no usable meals")
		return failed("model response contained no usable meals", parsed)
	}

	slog.Info("MEAL_PLANNER: Meal plan generated", "days", len(plan.Days))
	return foodbridge.MealPlanOutcome{Plan: plan, Raw: parsed}
}

func failed(details string, raw any) foodbridge.MealPlanOutcome {
	return foodbridge.MealPlanOutcome{Error: FailureMessage, Details: details, Raw: raw}
}

func detailsOf(obj map[string]any) string {
	if d, ok := obj["details"].(string); ok && d != "" {
		return d
	}
	return fmt.Sprint(obj["error"])
}

// decodePlan reads the plan member by member. Meals or days with an
// unusable shape are skipped; the rest of the plan is kept.
func decodePlan(obj map[string]any) *foodbridge.MealPlan {
	days := obj["days"]
	if days == nil {
		days = obj["week"]
	}
	plan := &foodbridge.MealPlan{
		Days:         decodeDays(days),
		ShoppingList: stringList(obj["shopping_list"]),
	}
	if summary, ok := obj["nutritional_summary"].(map[string]any); ok {
		plan.NutritionalSummary = summary
	}
	return plan
}

func decodeDays(v any) map[string]foodbridge.DayMeals {
	out := make(map[string]foodbridge.DayMeals)
	add := func(name string, day any) {
		m, ok := day.(map[string]any)
		if !ok || strings.TrimSpace(name) == "" {
			return
		}
		meals := foodbridge.DayMeals{
			Breakfast: decodeMeal(m["breakfast"]),
			Lunch:     decodeMeal(m["lunch"]),
			Dinner:    decodeMeal(m["dinner"]),
		}
		if meals.Breakfast != nil || meals.Lunch != nil || meals.Dinner != nil {
			out[name] = meals
		}
	}

	switch days := v.(type) {
	case map[string]any:
		for name, day := range days {
			add(name, day)
		}
	case []any:
		// A list of days is named by its "day" member or by weekday position.
		for i, day := range days {
			m, _ := day.(map[string]any)
			name, _ := m["day"].(string)
			if name == "" && i < len(foodbridge.Weekdays) {
				name = foodbridge.Weekdays[i]
			}
			add(name, day)
		}
	}
	return out
}

func decodeMeal(v any) *foodbridge.Meal {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := m["name"].(string)
	if strings.TrimSpace(name) == "" {
		return nil
	}
	meal := &foodbridge.Meal{Name: name, Ingredients: stringList(m["ingredients"])}
	meal.Description, _ = m["description"].(string)
	if n, ok := m["nutrition"].(map[string]any); ok {
		meal.Nutrition = n
	}
	return meal
}

// stringList accepts a list of strings or a comma separated string.
func stringList(v any) []string {
	var out []string
	switch v := v.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
