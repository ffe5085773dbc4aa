package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"foodbridge"
	"foodbridge/store"
	"foodbridge/workflow"
)

// Donation impact credited to the donor on a successful match.
var donationImpact = map[string]float64{
	"meals_provided": 10,
	"co2_saved":      5,
	"waste_reduced":  3,
	"score":          15,
}

// DonationInput is the donor-supplied part of a donation.
type DonationInput struct {
	Type                string `json:"type"`
	Quantity            string `json:"quantity"`
	ExpiryDate          string `json:"expiry_date"`
	Address             string `json:"address"`
	SpecialRequirements string `json:"special_requirements"`
	// DonorPhone defaults to the donor's account phone.
	DonorPhone string `json:"donor_phone"`
}

// DonationOutcome reports what happened to a submitted donation. The
// donation is stored even when no match is made.
type DonationOutcome struct {
	Donation  foodbridge.Donation    `json:"donation"`
	Matched   bool                   `json:"matched"`
	Recipient *foodbridge.Recipient  `json:"recipient,omitempty"`
	Match     foodbridge.MatchResult `json:"match"`
	Notified  bool                   `json:"notified"`
	Message   string                 `json:"message"`
}

// SubmitDonation records a donation and tries to match it with a recipient
// through the food_redistribution workflow.
func (a *App) SubmitDonation(ctx context.Context, donorID string, in DonationInput) (DonationOutcome, error) {
	if strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Quantity) == "" {
		return DonationOutcome{}, fmt.Errorf("%w: type and quantity are required", ErrInvalidInput)
	}
	donor, err := a.User(ctx, donorID)
	if err != nil {
		return DonationOutcome{}, err
	}

	d := foodbridge.Donation{
		DonorID:             donor.ID,
		Type:                in.Type,
		Quantity:            in.Quantity,
		ExpiryDate:          in.ExpiryDate,
		Location:            foodbridge.Location{Address: in.Address},
		SpecialRequirements: in.SpecialRequirements,
		DonorPhone:          in.DonorPhone,
		Status:              StatusAvailable,
	}
	if d.DonorPhone == "" {
		d.DonorPhone = donor.Phone
	}
	if d.ID, err = a.store.Insert(ctx, FoodDonations, d); err != nil {
		return DonationOutcome{}, fmt.Errorf("insert donation: %w", err)
	}
	out := DonationOutcome{Donation: d}

	recipients, err := store.FindAs[foodbridge.Recipient](ctx, a.store, Recipients, store.Filter{}, CandidateLimit)
	if err != nil {
		return out, fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		out.Message = "No recipients currently available. Your donation has been recorded."
		return out, nil
	}

	res, err := a.workflows.Run(ctx, workflow.FoodRedistribution, workflow.State{
		workflow.KeyDonation:   d,
		workflow.KeyRecipients: recipients,
	})
	if err != nil {
		return out, fmt.Errorf("match donation: %w", err)
	}
	match, _ := workflow.Match(res.State)
	out.Match = match
	if !match.Found() {
		out.Message = "Donation submitted! We'll notify you when we find a match."
		return out, nil
	}

	var recipient *foodbridge.Recipient
	for i := range recipients {
		if recipients[i].ID == match.RecipientID {
			recipient = &recipients[i]
			break
		}
	}
	if recipient == nil {
		slog.Warn("DONATIONS: Model selected an unknown recipient", "donation_id", d.ID, "recipient_id", match.CandidateID())
		out.Message = "Matched recipient not found"
		return out, nil
	}

	if _, err := a.store.Update(ctx, FoodDonations, store.Filter{store.IDField: d.ID}, store.Patch{Set: map[string]any{
		"recipient_id": recipient.ID,
		"status":       StatusMatched,
	}}); err != nil {
		return out, fmt.Errorf("mark donation matched: %w", err)
	}
	out.Donation.RecipientID = recipient.ID
	out.Donation.Status = StatusMatched
	out.Matched = true
	out.Recipient = recipient

	out.Notified = a.notifier.NotifyFoodMatch(ctx, d.DonorPhone, recipient.Phone, d)
	if err := a.addImpact(ctx, donor.ID, donationImpact); err != nil {
		return out, fmt.Errorf("update social impact: %w", err)
	}
	out.Message = fmt.Sprintf("Donation matched with %s!", orDefault(recipient.Name, "recipient"))
	slog.Info("DONATIONS: Donation matched", "donation_id", d.ID, "recipient_id", recipient.ID, "notified", out.Notified)
	return out, nil
}

// AvailableDonations lists donations waiting for a recipient.
func (a *App) AvailableDonations(ctx context.Context) ([]foodbridge.Donation, error) {
	return store.FindAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{"status": StatusAvailable}, ListLimit)
}

// RequestDonation lets a recipient claim an available donation. The donor is
// notified; the returned flag reports whether that message was delivered.
func (a *App) RequestDonation(ctx context.Context, recipientID, donationID string) (foodbridge.Donation, bool, error) {
	d, err := store.FindOneAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{store.IDField: donationID})
	if err != nil {
		return foodbridge.Donation{}, false, fmt.Errorf("donation %s: %w", donationID, err)
	}
	if d.Status != StatusAvailable {
		return d, false, fmt.Errorf("%w: donation %s is %s", ErrConflict, donationID, d.Status)
	}
	if _, err := a.User(ctx, recipientID); err != nil {
		return d, false, err
	}

	if _, err := a.store.Update(ctx, FoodDonations, store.Filter{store.IDField: donationID}, store.Patch{Set: map[string]any{
		"recipient_id": recipientID,
		"status":       StatusMatched,
	}}); err != nil {
		return d, false, fmt.Errorf("claim donation: %w", err)
	}
	d.RecipientID = recipientID
	d.Status = StatusMatched

	return d, a.notifier.NotifyDonationRequested(ctx, d.DonorPhone, d), nil
}

// DonationHistory lists recent donations a user gave or received.
func (a *App) DonationHistory(ctx context.Context, userID string) ([]foodbridge.Donation, error) {
	return store.FindAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{"$or": []store.Filter{
		{"donor_id": userID},
		{"recipient_id": userID},
	}}, HistoryLimit)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
