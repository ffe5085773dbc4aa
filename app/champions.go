package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"foodbridge"
	"foodbridge/store"
)

// ChampionInput is the application form of the champion programme.
type ChampionInput struct {
	Location     string `json:"location"`
	Experience   string `json:"experience"`
	Availability string `json:"availability"`
	Motivation   string `json:"motivation"`
}

// ChampionStats counts what a champion facilitated.
type ChampionStats struct {
	TotalDonations int `json:"total_donations"`
	TotalMeals     int `json:"total_meals"`
}

// ApplyChampion records a pending application and acknowledges it over
// WhatsApp. The flag reports whether the acknowledgement was delivered.
func (a *App) ApplyChampion(ctx context.Context, userID string, in ChampionInput) (foodbridge.ChampionApplication, bool, error) {
	u, err := a.User(ctx, userID)
	if err != nil {
		return foodbridge.ChampionApplication{}, false, err
	}
	_, err = a.store.FindOne(ctx, LocalChampions, store.Filter{"user_id": userID})
	if err == nil {
		return foodbridge.ChampionApplication{}, false, fmt.Errorf("%w: %s already applied", ErrConflict, userID)
	}
	if !isNotFound(err) {
		return foodbridge.ChampionApplication{}, false, err
	}

	application := foodbridge.ChampionApplication{
		UserID:       u.ID,
		Location:     strings.TrimSpace(in.Location),
		Experience:   in.Experience,
		Availability: in.Availability,
		Motivation:   in.Motivation,
		Status:       StatusPending,
	}
	if application.Location == "" {
		application.Location = u.Location
	}
	if application.ID, err = a.store.Insert(ctx, LocalChampions, application); err != nil {
		return foodbridge.ChampionApplication{}, false, fmt.Errorf("insert application: %w", err)
	}
	return application, a.notifier.NotifyChampionApplication(ctx, u.Phone), nil
}

// LeaveChampions removes a user from the programme.
func (a *App) LeaveChampions(ctx context.Context, userID string) error {
	n, err := a.store.Delete(ctx, LocalChampions, store.Filter{"user_id": userID})
	if err != nil {
		return fmt.Errorf("leave champions: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("champion %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (a *App) requireChampion(ctx context.Context, userID string) error {
	_, err := a.store.FindOne(ctx, LocalChampions, store.Filter{"user_id": userID})
	if isNotFound(err) {
		return fmt.Errorf("%w: %s is not a champion", ErrForbidden, userID)
	}
	return err
}

// Facilitate records a champion as the coordinator of an available donation.
func (a *App) Facilitate(ctx context.Context, championID, donationID string) error {
	if err := a.requireChampion(ctx, championID); err != nil {
		return err
	}
	n, err := a.store.Update(ctx, FoodDonations, store.Filter{
		store.IDField: donationID,
		"champion_id": map[string]any{"$exists": false},
	}, store.Patch{Set: map[string]any{"champion_id": championID}})
	if err != nil {
		return fmt.Errorf("facilitate: %w", err)
	}
	if n == 0 {
		if _, err := a.store.FindOne(ctx, FoodDonations, store.Filter{store.IDField: donationID}); err != nil {
			return fmt.Errorf("donation %s: %w", donationID, err)
		}
		return fmt.Errorf("%w: donation %s already has a champion", ErrConflict, donationID)
	}
	return nil
}

// ChampionStats counts the donations a champion facilitated and the meals
// they provided, taking meals from the leading number of each quantity.
func (a *App) ChampionStats(ctx context.Context, userID string) (ChampionStats, error) {
	rows, err := a.store.Aggregate(ctx, FoodDonations, []store.Stage{
		store.MatchStage(store.Filter{"champion_id": userID}),
		store.GroupStage(store.Group{Fields: map[string]store.Accumulator{
			"total_donations": {Op: store.OpCount},
			"total_meals":     {Op: store.OpSum, Field: "quantity", Number: leadingNumber},
		}}),
	})
	if err != nil {
		return ChampionStats{}, fmt.Errorf("champion stats: %w", err)
	}
	if len(rows) == 0 {
		return ChampionStats{}, nil
	}
	return ChampionStats{
		TotalDonations: int(number(rows[0]["total_donations"])),
		TotalMeals:     int(number(rows[0]["total_meals"])),
	}, nil
}

// PendingNearby lists available donations whose address mentions the
// champion's location.
func (a *App) PendingNearby(ctx context.Context, userID string) ([]foodbridge.Donation, error) {
	u, err := a.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	return store.FindAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{
		"status": StatusAvailable,
		"location.address": map[string]any{
			"$regex":   regexp.QuoteMeta(u.Location),
			"$options": "i",
		},
	}, NearbyLimit)
}
