package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"foodbridge"
)

// Requirements are estimated daily nutrient needs. Calories are kcal, the
// rest grams.
type Requirements struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
	Fiber    int `json:"fiber"`
	Sugar    int `json:"sugar"`
}

// Profile fallbacks and fixed targets for the requirement estimate.
const (
	DefaultAge           = 30
	DefaultActivityLevel = "moderately active"
	FiberTarget          = 30
	SugarLimit           = 50
)

var activityMultipliers = map[string]float64{
	"sedentary":         1.2,
	"lightly active":    1.375,
	"moderately active": 1.55,
	"very active":       1.725,
	"extremely active":  1.9,
}

// DailyRequirements estimates a profile's needs from the Harris-Benedict BMR
// at an average body size, scaled by activity and split 30/50/20 between
// protein, carbs and fat. Missing age, gender or activity fall back to 30,
// male and moderately active.
func DailyRequirements(p foodbridge.UserProfile) Requirements {
	age := float64(p.Age)
	if p.Age <= 0 {
		age = DefaultAge
	}

	var bmr float64
	switch strings.ToLower(strings.TrimSpace(p.Gender)) {
	case "", "male":
		bmr = 88.362 + 13.397*70 + 4.799*175 - 5.677*age
	default:
		bmr = 447.593 + 9.247*60 + 3.098*162 - 4.330*age
	}

	multiplier, ok := activityMultipliers[strings.ToLower(strings.TrimSpace(p.ActivityLevel))]
	if !ok {
		multiplier = activityMultipliers[DefaultActivityLevel]
	}
	calories := bmr * multiplier

	return Requirements{
		Calories: int(math.Round(calories)),
		Protein:  int(math.Round(calories * 0.3 / 4)),
		Carbs:    int(math.Round(calories * 0.5 / 4)),
		Fat:      int(math.Round(calories * 0.2 / 9)),
		Fiber:    FiberTarget,
		Sugar:    SugarLimit,
	}
}

// DayNutrition totals the nutrition the meals of one plan day report.
type DayNutrition struct {
	Day      string  `json:"day"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// NutritionReport compares a user's latest meal plan with their needs.
type NutritionReport struct {
	Requirements    Requirements   `json:"requirements"`
	Days            []DayNutrition `json:"days"`
	AverageCalories float64        `json:"average_calories"`
	AverageProtein  float64        `json:"average_protein"`
	CaloriePercent  float64        `json:"calorie_percent"`
	ProteinPercent  float64        `json:"protein_percent"`
	Insights        []string       `json:"insights"`
}

// NutritionInsights summarises the latest meal plan of a user against the
// daily requirements of their profile.
func (a *App) NutritionInsights(ctx context.Context, userID string) (NutritionReport, error) {
	u, err := a.User(ctx, userID)
	if err != nil {
		return NutritionReport{}, err
	}
	rec, err := a.LatestMealPlan(ctx, u.ID)
	if err != nil {
		return NutritionReport{}, err
	}
	return summarizePlan(rec.Plan, DailyRequirements(u.UserProfile)), nil
}

func summarizePlan(plan *foodbridge.MealPlan, req Requirements) NutritionReport {
	report := NutritionReport{Requirements: req, Days: planNutrition(plan)}
	if len(report.Days) == 0 {
		report.Insights = []string{"Your latest meal plan carries no nutrition figures."}
		return report
	}

	highest, lowest := report.Days[0], report.Days[0]
	var calories, protein float64
	for _, d := range report.Days {
		calories += d.Calories
		protein += d.Protein
		if d.Calories > highest.Calories {
			highest = d
		}
		if d.Calories < lowest.Calories {
			lowest = d
		}
	}
	n := float64(len(report.Days))
	report.AverageCalories = calories / n
	report.AverageProtein = protein / n
	report.CaloriePercent = percentOf(report.AverageCalories, req.Calories)
	report.ProteinPercent = percentOf(report.AverageProtein, req.Protein)

	report.Insights = append(report.Insights, calorieInsight(report.CaloriePercent))
	if s := proteinInsight(report.ProteinPercent); s != "" {
		report.Insights = append(report.Insights, s)
	}
	report.Insights = append(report.Insights,
		fmt.Sprintf("Highest calorie day: %s (%.0f kcal)", highest.Day, highest.Calories),
		fmt.Sprintf("Lowest calorie day: %s (%.0f kcal)", lowest.Day, lowest.Calories),
	)
	return report
}

// planNutrition totals each day that has at least one meal with nutrition,
// in plan order.
func planNutrition(plan *foodbridge.MealPlan) []DayNutrition {
	if plan == nil {
		return nil
	}
	var out []DayNutrition
	for _, day := range plan.OrderedDays() {
		meals := plan.Days[day]
		total := DayNutrition{Day: day}
		found := false
		for _, m := range []*foodbridge.Meal{meals.Breakfast, meals.Lunch, meals.Dinner} {
			if m == nil || len(m.Nutrition) == 0 {
				continue
			}
			found = true
			total.Calories += measure(m.Nutrition["calories"])
			total.Protein += measure(m.Nutrition["protein"])
			total.Carbs += measure(m.Nutrition["carbs"])
			total.Fat += measure(m.Nutrition["fat"])
		}
		if found {
			out = append(out, total)
		}
	}
	return out
}

// measure reads a nutrient amount given as a number or as text such as
// "25g" or "350 kcal". Anything else counts as zero.
func measure(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		s := strings.TrimSpace(n)
		end := 0
		for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
			end++
		}
		f, err := strconv.ParseFloat(s[:end], 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func percentOf(v float64, of int) float64 {
	if of <= 0 {
		return 0
	}
	return v / float64(of) * 100
}

func calorieInsight(pct float64) string {
	switch {
	case pct > 90:
		return fmt.Sprintf("Your meals provide %.0f%% of your daily calorie needs - great balance!", pct)
	case pct > 70:
		return fmt.Sprintf("Your meals provide %.0f%% of your daily calorie needs - almost there!", pct)
	default:
		return fmt.Sprintf("Your meals provide %.0f%% of your daily calorie needs - consider adding more nutrient-dense foods.", pct)
	}
}

func proteinInsight(pct float64) string {
	switch {
	case pct > 100:
		return fmt.Sprintf("Excellent protein intake at %.0f%% of your daily requirement!", pct)
	case pct > 80:
		return fmt.Sprintf("Good protein intake at %.0f%% of your daily requirement.", pct)
	default:
		return ""
	}
}
