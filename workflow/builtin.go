package workflow

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"foodbridge"
)

// Built-in workflow names.
const (
	MealPlanning       = "meal_planning"
	FoodRedistribution = "food_redistribution"
	WasteExchange      = "waste_exchange"
	ImpactCalculation  = "impact_calculation"
)

// State keys used by the built-in workflows.
const (
	KeyUserProfile         = "user_profile"
	KeyLocalProduce        = "local_produce"
	KeyMealPlan            = "meal_plan"
	KeyOutput              = "output"
	KeyDonation            = "donation"
	KeyRecipients          = "recipients"
	KeyWaste               = "waste"
	KeyPotentialUsers      = "potential_users"
	KeyMatch               = "match"
	KeyNotificationSent    = "notification_sent"
	KeyFoodItems           = "food_items"
	KeyNutrition           = "nutrition"
	KeyCO2Saved            = "co2_saved"
	KeyWasteReduced        = "waste_reduced"
	KeyNutritionalImpact   = "nutritional_impact"
	KeyEnvironmentalImpact = "environmental_impact"
)

// Per-item environmental estimates, in kilograms.
const (
	CO2PerItem   = 0.5
	WastePerItem = 0.3
)

type DonationMatcher interface {
	MatchDonation(ctx context.Context, d foodbridge.Donation, recipients []foodbridge.Recipient) (foodbridge.MatchResult, error)
}

type WasteMatcher interface {
	MatchWaste(ctx context.Context, w foodbridge.WasteListing, users []foodbridge.WasteUser) (foodbridge.MatchResult, error)
}

type MealPlanGenerator interface {
	Generate(ctx context.Context, profile foodbridge.UserProfile, produce []foodbridge.Produce) foodbridge.MealPlanOutcome
}

type NutritionEstimator interface {
	Estimate(ctx context.Context, items []foodbridge.FoodItem) (map[string]any, error)
}

// Deps are the collaborators the built-in workflows call.
type Deps struct {
	Donations DonationMatcher
	Waste     WasteMatcher
	MealPlans MealPlanGenerator
	Nutrition NutritionEstimator
}

// Builtin returns the four built-in graphs.
func Builtin(d Deps) []Graph {
	return []Graph{
		mealPlanningGraph(d.MealPlans),
		foodRedistributionGraph(d.Donations),
		wasteExchangeGraph(d.Waste),
		impactCalculationGraph(d.Nutrition),
	}
}

// NewBuiltin returns an orchestrator with the built-in graphs defined.
func NewBuiltin(d Deps, opts ...Option) (*Orchestrator, error) {
	o := New(opts...)
	for _, g := range Builtin(d) {
		if err := o.Define(g); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// passThrough republishes an input key, checking that it is present.
func passThrough(key string) NodeFunc {
	return func(_ context.Context, s State) (State, error) {
		v, ok := s[key]
		if !ok {
			return nil, fmt.Errorf("missing input %q", key)
		}
		return State{key: v}, nil
	}
}

// decode reads key as a T, converting loosely typed values such as decoded
// JSON input through the wire format.
func decode[T any](s State, key string) (T, error) {
	var out T
	v, ok := s[key]
	if !ok {
		return out, fmt.Errorf("missing input %q", key)
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode %q: %w", key, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode %q as %T: %w", key, out, err)
	}
	return out, nil
}

func mealPlanningGraph(gen MealPlanGenerator) Graph {
	return Graph{
		Name: MealPlanning,
		Nodes: []Node{
			{Name: "get_user_profile", Run: passThrough(KeyUserProfile)},
			{Name: "get_local_produce", Run: passThrough(KeyLocalProduce)},
			{Name: "generate_meal_plan", Run: func(ctx context.Context, s State) (State, error) {
				profile, err := decode[foodbridge.UserProfile](s, KeyUserProfile)
				if err != nil {
					return nil, err
				}
				produce, err := decode[[]foodbridge.Produce](s, KeyLocalProduce)
				if err != nil {
					return nil, err
				}
				return State{KeyMealPlan: gen.Generate(ctx, profile, produce)}, nil
			}},
			{Name: "format_output", Run: func(_ context.Context, s State) (State, error) {
				return State{KeyOutput: s[KeyMealPlan]}, nil
			}},
		},
		Edges: []Edge{
			{From: "get_user_profile", To: "generate_meal_plan"},
			{From: "get_local_produce", To: "generate_meal_plan"},
			{From: "generate_meal_plan", To: "format_output"},
		},
		Entry:  "get_user_profile",
		Finish: "format_output",
	}
}

// notifyParties reports success unconditionally. Delivery happens in the
// calling service after the run, which knows the real outcome.
func notifyParties(context.Context, State) (State, error) {
	return State{KeyNotificationSent: true}, nil
}

func foodRedistributionGraph(m DonationMatcher) Graph {
	return Graph{
		Name: FoodRedistribution,
		Nodes: []Node{
			{Name: "analyze_donation", Run: passThrough(KeyDonation)},
			{Name: "get_recipients", Run: passThrough(KeyRecipients)},
			{Name: "match_donation", Run: func(ctx context.Context, s State) (State, error) {
				donation, err := decode[foodbridge.Donation](s, KeyDonation)
				if err != nil {
					return nil, err
				}
				recipients, err := decode[[]foodbridge.Recipient](s, KeyRecipients)
				if err != nil {
					return nil, err
				}
				match, err := m.MatchDonation(ctx, donation, recipients)
				if err != nil {
					return nil, err
				}
				return State{KeyMatch: match}, nil
			}},
			{Name: "notify_parties", Run: notifyParties},
		},
		Edges: []Edge{
			{From: "analyze_donation", To: "match_donation"},
			{From: "get_recipients", To: "match_donation"},
			{From: "match_donation", To: "notify_parties"},
		},
		Entry:  "analyze_donation",
		Finish: "notify_parties",
	}
}

func wasteExchangeGraph(m WasteMatcher) Graph {
	return Graph{
		Name: WasteExchange,
		Nodes: []Node{
			{Name: "analyze_waste", Run: passThrough(KeyWaste)},
			{Name: "get_potential_users", Run: passThrough(KeyPotentialUsers)},
			{Name: "match_waste", Run: func(ctx context.Context, s State) (State, error) {
				waste, err := decode[foodbridge.WasteListing](s, KeyWaste)
				if err != nil {
					return nil, err
				}
				users, err := decode[[]foodbridge.WasteUser](s, KeyPotentialUsers)
				if err != nil {
					return nil, err
				}
				match, err := m.MatchWaste(ctx, waste, users)
				if err != nil {
					return nil, err
				}
				return State{KeyMatch: match}, nil
			}},
			{Name: "notify_parties", Run: notifyParties},
		},
		Edges: []Edge{
			{From: "analyze_waste", To: "match_waste"},
			{From: "get_potential_users", To: "match_waste"},
			{From: "match_waste", To: "notify_parties"},
		},
		Entry:  "analyze_waste",
		Finish: "notify_parties",
	}
}

func impactCalculationGraph(n NutritionEstimator) Graph {
	return Graph{
		Name: ImpactCalculation,
		Nodes: []Node{
			{Name: "get_food_items", Run: passThrough(KeyFoodItems)},
			{Name: "calculate_nutrition", Run: func(ctx context.Context, s State) (State, error) {
				items, err := decode[[]foodbridge.FoodItem](s, KeyFoodItems)
				if err != nil {
					return nil, err
				}
				nutrition, err := n.Estimate(ctx, items)
				if err != nil {
					return nil, err
				}
				return State{KeyNutrition: nutrition}, nil
			}},
			{Name: "calculate_environmental", Run: func(_ context.Context, s State) (State, error) {
				items, err := decode[[]foodbridge.FoodItem](s, KeyFoodItems)
				if err != nil {
					return nil, err
				}
				count := float64(len(items))
				return State{
					KeyCO2Saved:     count * CO2PerItem,
					KeyWasteReduced: count * WastePerItem,
				}, nil
			}},
			{Name: "combine_results", Run: func(_ context.Context, s State) (State, error) {
				nutrition, _ := s[KeyNutrition].(map[string]any)
				co2, _ := s[KeyCO2Saved].(float64)
				waste, _ := s[KeyWasteReduced].(float64)
				return State{
					KeyNutritionalImpact: nutrition,
					KeyEnvironmentalImpact: foodbridge.EnvironmentalImpact{
						CO2Saved:     co2,
						WasteReduced: waste,
					},
				}, nil
			}},
		},
		Edges: []Edge{
			{From: "get_food_items", To: "calculate_nutrition"},
			{From: "get_food_items", To: "calculate_environmental"},
			{From: "calculate_nutrition", To: "combine_results"},
			{From: "calculate_environmental", To: "combine_results"},
		},
		Entry:  "get_food_items",
		Finish: "combine_results",
	}
}

// ImpactReport reads the impact_calculation output as a typed report.
func ImpactReport(out State) foodbridge.ImpactReport {
	nutrition, _ := out[KeyNutritionalImpact].(map[string]any)
	env, _ := decode[foodbridge.EnvironmentalImpact](out, KeyEnvironmentalImpact)
	return foodbridge.ImpactReport{NutritionalImpact: nutrition, EnvironmentalImpact: env}
}

// Match reads the match a food_redistribution or waste_exchange run produced.
func Match(s State) (foodbridge.MatchResult, bool) {
	m, ok := s[KeyMatch].(foodbridge.MatchResult)
	return m, ok
}

// MealPlanOutcome reads the meal_planning output.
func MealPlanOutcome(out State) (foodbridge.MealPlanOutcome, bool) {
	o, ok := out[KeyOutput].(foodbridge.MealPlanOutcome)
	return o, ok
}
