package app

import (
	"context"
	"fmt"

	"foodbridge"
	"foodbridge/store"
	"foodbridge/workflow"
)

// MealPlanRecord is a generated plan as stored in meal_plans.
type MealPlanRecord struct {
	ID               string               `json:"_id,omitempty"`
	UserID           string               `json:"user_id"`
	Plan             *foodbridge.MealPlan `json:"plan"`
	LocalProduceUsed bool                 `json:"local_produce_used"`
	// Raw is the model's parsed reply as it came back.
	Raw              any                  `json:"raw,omitempty"`
	CreatedAt        string               `json:"created_at,omitempty"`
}

// MealPlanError carries the generator's failure details.
type MealPlanError struct {
	Outcome foodbridge.MealPlanOutcome
}

func (e *MealPlanError) Error() string {
	if e.Outcome.Details == "" {
		return e.Outcome.Error
	}
	return e.Outcome.Error + ": " + e.Outcome.Details
}

func (e *MealPlanError) Unwrap() error { return ErrMealPlanFailed }

// GenerateMealPlan runs the meal_planning workflow for a user with a
// complete profile and stores the plan.
func (a *App) GenerateMealPlan(ctx context.Context, userID string) (MealPlanRecord, error) {
	u, err := a.User(ctx, userID)
	if err != nil {
		return MealPlanRecord{}, err
	}
	if !u.UserProfile.Complete() {
		return MealPlanRecord{}, ErrProfileIncomplete
	}
	produce, err := store.FindAs[foodbridge.Produce](ctx, a.store, LocalProduce, store.Filter{}, CandidateLimit)
	if err != nil {
		return MealPlanRecord{}, fmt.Errorf("load produce: %w", err)
	}

	res, err := a.workflows.Run(ctx, workflow.MealPlanning, workflow.State{
		workflow.KeyUserProfile:  u.UserProfile,
		workflow.KeyLocalProduce: produce,
	})
	if err != nil {
		return MealPlanRecord{}, fmt.Errorf("meal planning: %w", err)
	}
	outcome, ok := workflow.MealPlanOutcome(res.Output)
	if !ok {
		return MealPlanRecord{}, fmt.Errorf("meal planning: %w: no outcome in output", ErrMealPlanFailed)
	}
	if outcome.Failed() {
		return MealPlanRecord{}, &MealPlanError{Outcome: outcome}
	}

	rec := MealPlanRecord{
		UserID:           u.ID,
		Plan:             outcome.Plan,
		LocalProduceUsed: len(produce) > 0,
		Raw:              outcome.Raw,
	}
	if rec.ID, err = a.store.Insert(ctx, MealPlans, rec); err != nil {
		return MealPlanRecord{}, fmt.Errorf("store meal plan: %w", err)
	}
	return rec, nil
}

// LatestMealPlan returns the most recently stored plan of a user.
func (a *App) LatestMealPlan(ctx context.Context, userID string) (MealPlanRecord, error) {
	rows, err := a.store.Aggregate(ctx, MealPlans, []store.Stage{
		store.MatchStage(store.Filter{"user_id": userID}),
		store.SortStage(
			store.SortField{Field: store.CreatedAtField, Desc: true},
			store.SortField{Field: store.IDField, Desc: true},
		),
		store.LimitStage(1),
	})
	if err != nil {
		return MealPlanRecord{}, fmt.Errorf("latest meal plan: %w", err)
	}
	if len(rows) == 0 {
		return MealPlanRecord{}, fmt.Errorf("meal plan for %s: %w", userID, ErrNotFound)
	}
	var rec MealPlanRecord
	if err := store.Decode(rows[0], &rec); err != nil {
		return MealPlanRecord{}, err
	}
	return rec, nil
}
