package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodbridge"
	"foodbridge/llm/mock"
)

func TestChampionProgramme(t *testing.T) {
	h := newHarness(t, mock.NewModel())
	ctx := context.Background()
	userID := h.addUser(t, foodbridge.User{Email: "c@example.org", Phone: "+15550001111", Role: RoleDonor, Location: "Leeds"})
	outsider := h.addUser(t, foodbridge.User{Email: "o@example.org", Role: RoleDonor})

	near := h.insert(t, FoodDonations, foodbridge.Donation{Type: "Fruits", Quantity: "10 crates", Status: StatusAvailable, Location: foodbridge.Location{Address: "3 Park Row, leeds"}})
	far := h.insert(t, FoodDonations, foodbridge.Donation{Type: "Dairy", Quantity: "5 l", Status: StatusAvailable, Location: foodbridge.Location{Address: "9 Strand, London"}})
	h.insert(t, FoodDonations, foodbridge.Donation{Type: "Fish", Quantity: "2 kg", Status: StatusMatched, Location: foodbridge.Location{Address: "Leeds Dock"}})

	application, notified, err := h.app.ApplyChampion(ctx, userID, ChampionInput{Motivation: "community"})
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, StatusPending, application.Status)
	assert.Equal(t, "Leeds", application.Location)
	msgs := h.messenger.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "Local Champion Application Received")

	_, _, err = h.app.ApplyChampion(ctx, userID, ChampionInput{})
	assert.ErrorIs(t, err, ErrConflict)

	pending, err := h.app.PendingNearby(ctx, userID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, near, pending[0].ID)

	assert.ErrorIs(t, h.app.Facilitate(ctx, outsider, near), ErrForbidden)
	require.NoError(t, h.app.Facilitate(ctx, userID, near))
	require.NoError(t, h.app.Facilitate(ctx, userID, far))
	assert.ErrorIs(t, h.app.Facilitate(ctx, userID, near), ErrConflict)
	assert.ErrorIs(t, h.app.Facilitate(ctx, userID, "missing"), ErrNotFound)

	stats, err := h.app.ChampionStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ChampionStats{TotalDonations: 2, TotalMeals: 15}, stats)

	empty, err := h.app.ChampionStats(ctx, outsider)
	require.NoError(t, err)
	assert.Equal(t, ChampionStats{}, empty)

	require.NoError(t, h.app.LeaveChampions(ctx, userID))
	assert.ErrorIs(t, h.app.LeaveChampions(ctx, userID), ErrNotFound)
}
