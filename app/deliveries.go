package app

import (
	"context"
	"fmt"
	"log/slog"

	"foodbridge"
	"foodbridge/notify"
	"foodbridge/store"
)

// Performance summarises a delivery partner's completed deliveries.
type Performance struct {
	Deliveries     int     `json:"deliveries"`
	AverageMinutes float64 `json:"average_minutes"`
}

// AvailableDeliveries lists matched donations nobody has picked up yet.
func (a *App) AvailableDeliveries(ctx context.Context) ([]foodbridge.Donation, error) {
	return store.FindAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{
		"status":          StatusMatched,
		"delivery_status": map[string]any{"$exists": false},
	}, DeliveryLimit)
}

// MyDeliveries lists the donations assigned to a partner.
func (a *App) MyDeliveries(ctx context.Context, partnerID string) ([]foodbridge.Donation, error) {
	return store.FindAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{"delivery_partner_id": partnerID}, DeliveryLimit)
}

// contactPhone finds the phone of a donation party, who may be a user
// account or an entry of the recipients collection.
func (a *App) contactPhone(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	if u, err := a.User(ctx, id); err == nil {
		return u.Phone
	}
	r, err := store.FindOneAs[foodbridge.Recipient](ctx, a.store, Recipients, store.Filter{store.IDField: id})
	if err != nil {
		return ""
	}
	return r.Phone
}

func (a *App) logDelivery(ctx context.Context, donationID, partnerID, status string) error {
	_, err := a.store.Insert(ctx, DeliveryLogs, foodbridge.DeliveryLog{
		DeliveryID: donationID,
		PartnerID:  partnerID,
		Status:     status,
		Timestamp:  a.now(),
	})
	return err
}

// ConfirmPickup assigns a matched donation to the partner and tells the
// recipient it is on its way. The flag reports whether that message was
// delivered, or true when the recipient has no phone on record.
func (a *App) ConfirmPickup(ctx context.Context, donationID, partnerID string) (bool, error) {
	d, err := store.FindOneAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{store.IDField: donationID})
	if err != nil {
		return false, fmt.Errorf("delivery %s: %w", donationID, err)
	}
	if d.Status != StatusMatched || d.DeliveryStatus != "" {
		return false, fmt.Errorf("%w: delivery %s is not awaiting pickup", ErrConflict, donationID)
	}
	partner, err := a.User(ctx, partnerID)
	if err != nil {
		return false, err
	}

	now := a.now()
	n, err := a.store.Update(ctx, FoodDonations, store.Filter{store.IDField: donationID}, store.Patch{Set: map[string]any{
		"delivery_partner_id": partner.ID,
		"pickup_time":         now,
		"delivery_status":     notify.StatusPickupConfirmed,
		"delivery_start_time": now,
	}})
	if err != nil {
		return false, fmt.Errorf("confirm pickup: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := a.logDelivery(ctx, donationID, partner.ID, notify.StatusPickupConfirmed); err != nil {
		return false, fmt.Errorf("log pickup: %w", err)
	}
	slog.Info("DELIVERY: Pickup confirmed", "delivery_id", donationID, "partner_id", partner.ID)

	phone := a.contactPhone(ctx, d.RecipientID)
	if phone == "" {
		return true, nil
	}
	return a.notifier.NotifyDeliveryUpdate(ctx, phone, notify.DeliveryUpdate{
		Type:         d.Type,
		Quantity:     d.Quantity,
		PartnerPhone: partner.Phone,
	}, notify.StatusPickupConfirmed), nil
}

// ConfirmDelivery completes a delivery started by the same partner and
// notifies both parties. The flag is true only if every message was delivered.
func (a *App) ConfirmDelivery(ctx context.Context, donationID, partnerID string) (bool, error) {
	d, err := store.FindOneAs[foodbridge.Donation](ctx, a.store, FoodDonations, store.Filter{store.IDField: donationID})
	if err != nil {
		return false, fmt.Errorf("delivery %s: %w", donationID, err)
	}
	if d.DeliveryStatus != notify.StatusPickupConfirmed || d.DeliveryStartTime == nil {
		return false, fmt.Errorf("%w: delivery %s has not been picked up", ErrConflict, donationID)
	}
	if d.DeliveryPartnerID != partnerID {
		return false, fmt.Errorf("%w: delivery %s belongs to another partner", ErrForbidden, donationID)
	}

	now := a.now()
	minutes := now.Sub(*d.DeliveryStartTime).Minutes()
	n, err := a.store.Update(ctx, FoodDonations, store.Filter{store.IDField: donationID}, store.Patch{Set: map[string]any{
		"delivery_status":           notify.StatusDelivered,
		"delivery_end_time":         now,
		"delivery_duration_minutes": minutes,
	}})
	if err != nil {
		return false, fmt.Errorf("confirm delivery: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := a.logDelivery(ctx, donationID, partnerID, notify.StatusDelivered); err != nil {
		return false, fmt.Errorf("log delivery: %w", err)
	}
	slog.Info("DELIVERY: Delivery completed", "delivery_id", donationID, "minutes", minutes)

	update := notify.DeliveryUpdate{Type: d.Type, Quantity: d.Quantity, DurationMinutes: minutes}
	success := true
	if phone := a.contactPhone(ctx, d.RecipientID); phone != "" {
		update.IsRecipient = true
		success = a.notifier.NotifyDeliveryUpdate(ctx, phone, update, notify.StatusDelivered) && success
	}
	if phone := a.contactPhone(ctx, d.DonorID); phone != "" {
		update.IsRecipient = false
		success = a.notifier.NotifyDeliveryUpdate(ctx, phone, update, notify.StatusDelivered) && success
	}
	return success, nil
}

// DeliveryPerformance averages the duration of a partner's completed deliveries.
func (a *App) DeliveryPerformance(ctx context.Context, partnerID string) (Performance, error) {
	rows, err := a.store.Aggregate(ctx, FoodDonations, []store.Stage{
		store.MatchStage(store.Filter{
			"delivery_partner_id":       partnerID,
			"delivery_status":           notify.StatusDelivered,
			"delivery_duration_minutes": map[string]any{"$exists": true},
		}),
		store.GroupStage(store.Group{Fields: map[string]store.Accumulator{
			"deliveries": {Op: store.OpCount},
			"average":    {Op: store.OpAvg, Field: "delivery_duration_minutes"},
		}}),
	})
	if err != nil {
		return Performance{}, fmt.Errorf("delivery performance: %w", err)
	}
	if len(rows) == 0 {
		return Performance{}, nil
	}
	return Performance{
		Deliveries:     int(number(rows[0]["deliveries"])),
		AverageMinutes: number(rows[0]["average"]),
	}, nil
}
