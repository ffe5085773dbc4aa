package app

import (
	"context"
	"fmt"

	"foodbridge"
	"foodbridge/store"
	"foodbridge/workflow"
)

// LeaderboardEntry is one row of the social impact leaderboard.
type LeaderboardEntry struct {
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	Location   string  `json:"location,omitempty"`
	Score      float64 `json:"score"`
	IsChampion bool    `json:"is_champion"`
}

// CalculateImpact runs impact_calculation over everything the user donated
// and stores the report in nutritional_impact.
func (a *App) CalculateImpact(ctx context.Context, userID string) (foodbridge.ImpactReport, error) {
	donations, err := store.FindAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{"donor_id": userID}, DeliveryLimit)
	if err != nil {
		return foodbridge.ImpactReport{}, fmt.Errorf("load donations: %w", err)
	}
	items := make([]foodbridge.FoodItem, 0, len(donations))
	for _, d := range donations {
		items = append(items, foodbridge.FoodItem{Type: d.Type, Quantity: d.Quantity})
	}

	res, err := a.workflows.Run(ctx, workflow.ImpactCalculation, workflow.State{workflow.KeyFoodItems: items})
	if err != nil {
		return foodbridge.ImpactReport{}, fmt.Errorf("impact calculation: %w", err)
	}
	report := workflow.ImpactReport(res.Output)

	if _, err := a.store.Insert(ctx, NutritionalImpact, map[string]any{
		"user_id":              userID,
		"items":                len(items),
		"nutritional_impact":   report.NutritionalImpact,
		"environmental_impact": report.EnvironmentalImpact,
	}); err != nil {
		return report, fmt.Errorf("store impact: %w", err)
	}
	return report, nil
}

// ImpactSummary returns the accumulated social impact of a user, zero when
// nothing was recorded yet.
func (a *App) ImpactSummary(ctx context.Context, userID string) (foodbridge.SocialImpact, error) {
	si, err := store.FindOneAs[foodbridge.SocialImpact](ctx, a.store, SocialImpacts, store.Filter{"user_id": userID})
	if isNotFound(err) {
		return foodbridge.SocialImpact{UserID: userID}, nil
	}
	if err != nil {
		return foodbridge.SocialImpact{}, fmt.Errorf("social impact: %w", err)
	}
	return si, nil
}

// ShareImpact sends the user their impact summary over WhatsApp.
func (a *App) ShareImpact(ctx context.Context, userID string) (bool, error) {
	u, err := a.User(ctx, userID)
	if err != nil {
		return false, err
	}
	si, err := a.ImpactSummary(ctx, userID)
	if err != nil {
		return false, err
	}
	return a.notifier.NotifySocialImpact(ctx, u.Phone, si), nil
}

// Leaderboard ranks users by social impact score.
func (a *App) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := a.store.Aggregate(ctx, SocialImpacts, []store.Stage{
		store.SortStage(store.SortField{Field: "score", Desc: true}),
		store.LimitStage(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		userID, _ := r["user_id"].(string)
		e := LeaderboardEntry{
			UserID:     userID,
			Name:       "Unknown",
			Score:      number(r["score"]),
			IsChampion: number(r["score"]) >= ChampionScore,
		}
		if u, err := a.User(ctx, userID); err == nil {
			e.Name = orDefault(u.Name, e.Name)
			e.Location = u.Location
		} else if !isNotFound(err) {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
