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

func seedRecipients(t *testing.T, h *harness) {
	t.Helper()
	h.insert(t, Recipients, foodbridge.Recipient{ID: "r1", Name: "Night Shelter", Phone: "+15550000001", Needs: []string{"bread"}})
	h.insert(t, Recipients, foodbridge.Recipient{ID: "r2", Name: "Food Bank", Phone: "+15550000002", Needs: []string{"produce"}})
}

func TestSubmitDonation(t *testing.T) {
	input := DonationInput{Type: "Vegetables", Quantity: "12 kg", ExpiryDate: "2025-03-05", Address: "1 Market St"}

	tests := []struct {
		name          string
		model         *mock.Model
		recipients    bool
		wantErr       bool
		wantMatched   bool
		wantRecipient string
		wantMessages  int
		wantCalls     int
	}{
		{
			name:          "matched and notified",
			model:         mock.Texts(`{"recipient_id": "r2", "justification": "needs produce"}`),
			recipients:    true,
			wantMatched:   true,
			wantRecipient: "r2",
			wantMessages:  2,
			wantCalls:     1,
		},
		{
			name:       "fenced reply",
			model:      mock.Texts("Here you go:\n```json\n{\"recipient_id\": \"r1\"}\n```"),
			recipients: true, wantMatched: true, wantRecipient: "r1", wantMessages: 2, wantCalls: 1,
		},
		{
			name:       "no recipients",
			model:      mock.NewModel(),
			recipients: false,
		},
		{
			name:       "unknown recipient",
			model:      mock.Texts(`{"recipient_id": "r9"}`),
			recipients: true, wantCalls: 1,
		},
		{
			name:       "no match",
			model:      mock.Texts(`I could not decide.`),
			recipients: true, wantCalls: 1,
		},
		{
			name:       "model failure",
			model:      mock.Failing(errors.New("throttled")),
			recipients: true, wantErr: true, wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.model)
			ctx := context.Background()
			donorID := h.addUser(t, foodbridge.User{Name: "Deli", Email: "deli@example.org", Phone: "+15559990000", Role: RoleDonor})
			if tt.recipients {
				seedRecipients(t, h)
			}

			out, err := h.app.SubmitDonation(ctx, donorID, input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, tt.model.Calls(), tt.wantCalls)

			require.NotEmpty(t, out.Donation.ID, "donation is stored before matching")
			stored, err := store.FindOneAs[foodbridge.Donation](ctx, h.store, FoodDonations, store.Filter{store.IDField: out.Donation.ID})
			require.NoError(t, err)
			assert.Equal(t, donorID, stored.DonorID)
			assert.Equal(t, "+15559990000", stored.DonorPhone)

			assert.Equal(t, tt.wantMatched, out.Matched)
			assert.Len(t, h.messenger.messages(), tt.wantMessages)

			impact, err := h.app.ImpactSummary(ctx, donorID)
			require.NoError(t, err)
			if tt.wantMatched {
				assert.Equal(t, StatusMatched, stored.Status)
				assert.Equal(t, tt.wantRecipient, stored.RecipientID)
				assert.True(t, out.Notified)
				assert.Equal(t, 10.0, impact.MealsProvided)
				assert.Equal(t, 15.0, impact.Score)
			} else {
				assert.Equal(t, StatusAvailable, stored.Status)
				assert.Empty(t, stored.RecipientID)
				assert.Zero(t, impact.Score)
				assert.NotEmpty(t, out.Message+errString(err))
			}
		})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func TestSubmitDonationValidation(t *testing.T) {
	h := newHarness(t, mock.NewModel())
	ctx := context.Background()
	donorID := h.addUser(t, foodbridge.User{Email: "d@example.org", Role: RoleDonor})

	_, err := h.app.SubmitDonation(ctx, donorID, DonationInput{Quantity: "1 kg"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.app.SubmitDonation(ctx, "ghost", DonationInput{Type: "Dairy", Quantity: "1 kg"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestDonation(t *testing.T) {
	h := newHarness(t, mock.NewModel())
	ctx := context.Background()
	recipientID := h.addUser(t, foodbridge.User{Email: "r@example.org", Role: RoleRecipient})
	donationID := h.insert(t, FoodDonations, foodbridge.Donation{
		Type: "Baked Goods", Quantity: "30 loaves", DonorPhone: "+15551230000", Status: StatusAvailable,
	})

	available, err := h.app.AvailableDonations(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)

	d, notified, err := h.app.RequestDonation(ctx, recipientID, donationID)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, StatusMatched, d.Status)

	msgs := h.messenger.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+15551230000", msgs[0].To)
	assert.Contains(t, msgs[0].Body, "Your donation has been requested!")

	_, _, err = h.app.RequestDonation(ctx, recipientID, donationID)
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = h.app.RequestDonation(ctx, recipientID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	available, err = h.app.AvailableDonations(ctx)
	require.NoError(t, err)
	assert.Empty(t, available)

	history, err := h.app.DonationHistory(ctx, recipientID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, donationID, history[0].ID)
}
