package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"foodbridge"
	"foodbridge/store"
	"foodbridge/workflow"
)

// WasteInput is the supplier-supplied part of a waste listing.
type WasteInput struct {
	Type        string `json:"type"`
	Quantity    string `json:"quantity"`
	Composition string `json:"composition"`
	Address     string `json:"address"`
	// ContactPhone defaults to the supplier's account phone.
	ContactPhone string `json:"contact_phone"`
}

// WasteOutcome reports what happened to an offered waste listing.
type WasteOutcome struct {
	Waste    foodbridge.WasteListing `json:"waste"`
	Matched  bool                    `json:"matched"`
	Receiver *foodbridge.User        `json:"receiver,omitempty"`
	Match    foodbridge.MatchResult  `json:"match"`
	Notified bool                    `json:"notified"`
	Message  string                  `json:"message"`
}

// OfferWaste records a waste listing and tries to match it with a business
// through the waste_exchange workflow. Impact is credited only when both
// parties were notified.
func (a *App) OfferWaste(ctx context.Context, supplierID string, in WasteInput) (WasteOutcome, error) {
	if strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Quantity) == "" {
		return WasteOutcome{}, fmt.Errorf("%w: type and quantity are required", ErrInvalidInput)
	}
	supplier, err := a.User(ctx, supplierID)
	if err != nil {
		return WasteOutcome{}, err
	}

	w := foodbridge.WasteListing{
		SupplierID:   supplier.ID,
		Type:         in.Type,
		Quantity:     in.Quantity,
		Composition:  in.Composition,
		Location:     foodbridge.Location{Address: in.Address},
		ContactPhone: in.ContactPhone,
		Status:       StatusAvailable,
	}
	if w.ContactPhone == "" {
		w.ContactPhone = supplier.Phone
	}
	if w.ID, err = a.store.Insert(ctx, WasteMaterials, w); err != nil {
		return WasteOutcome{}, fmt.Errorf("insert waste: %w", err)
	}
	out := WasteOutcome{Waste: w}

	users, err := store.FindAs[foodbridge.WasteUser](ctx, a.store, WasteUsers, store.Filter{}, CandidateLimit)
	if err != nil {
		return out, fmt.Errorf("load waste users: %w", err)
	}
	if len(users) == 0 {
		out.Message = "No potential users currently available. Your waste offer has been recorded."
		return out, nil
	}

	res, err := a.workflows.Run(ctx, workflow.WasteExchange, workflow.State{
		workflow.KeyWaste:          w,
		workflow.KeyPotentialUsers: users,
	})
	if err != nil {
		return out, fmt.Errorf("match waste: %w", err)
	}
	match, _ := workflow.Match(res.State)
	out.Match = match
	if !match.Found() {
		out.Message = "Waste offer submitted! We'll notify you when we find a match."
		return out, nil
	}

	// The model may answer with either the listing id or the owning user id.
	var candidate *foodbridge.WasteUser
	for i := range users {
		if users[i].UserID == match.CandidateID() || users[i].ID == match.CandidateID() {
			candidate = &users[i]
			break
		}
	}
	if candidate == nil {
		slog.Warn("WASTE: Model selected an unknown business", "waste_id", w.ID, "user_id", match.CandidateID())
		out.Message = "Matched receiver not found"
		return out, nil
	}
	receiver, err := a.User(ctx, candidate.UserID)
	if isNotFound(err) {
		out.Message = "Matched receiver not found"
		return out, nil
	}
	if err != nil {
		return out, err
	}

	if _, err := a.store.Update(ctx, WasteMaterials, store.Filter{store.IDField: w.ID}, store.Patch{Set: map[string]any{
		"receiver_id": receiver.ID,
		"status":      StatusMatched,
	}}); err != nil {
		return out, fmt.Errorf("mark waste matched: %w", err)
	}
	out.Waste.ReceiverID = receiver.ID
	out.Waste.Status = StatusMatched
	out.Matched = true
	out.Receiver = &receiver

	out.Notified = a.notifier.NotifyWasteExchange(ctx, w.ContactPhone, receiver.Phone, w)
	if !out.Notified {
		out.Message = "Waste matched but notifications failed to send"
		return out, nil
	}

	reduced := 1.0
	if n, ok := leadingInt(w.Quantity); ok {
		reduced = float64(n)
	}
	if err := a.addImpact(ctx, supplier.ID, map[string]float64{
		"waste_reduced": reduced,
		"co2_saved":     2,
		"score":         10,
	}); err != nil {
		return out, fmt.Errorf("update social impact: %w", err)
	}
	out.Message = fmt.Sprintf("Waste matched with %s!", orDefault(receiver.Name, "business"))
	slog.Info("WASTE: Waste matched", "waste_id", w.ID, "receiver_id", receiver.ID)
	return out, nil
}

// AvailableWaste lists waste listings waiting for a receiver.
func (a *App) AvailableWaste(ctx context.Context) ([]foodbridge.WasteListing, error) {
	return store.FindAs[foodbridge.WasteListing](ctx, a.store, WasteMaterials, store.Filter{"status": StatusAvailable}, ListLimit)
}

// RequestWaste lets a business claim an available listing and notifies the supplier.
func (a *App) RequestWaste(ctx context.Context, receiverID, wasteID string) (foodbridge.WasteListing, bool, error) {
	w, err := store.FindOneAs[foodbridge.WasteListing](ctx, a.store, WasteMaterials, store.Filter{store.IDField: wasteID})
	if err != nil {
		return foodbridge.WasteListing{}, false, fmt.Errorf("waste %s: %w", wasteID, err)
	}
	if w.Status != StatusAvailable {
		return w, false, fmt.Errorf("%w: waste %s is %s", ErrConflict, wasteID, w.Status)
	}
	if _, err := a.User(ctx, receiverID); err != nil {
		return w, false, err
	}

	if _, err := a.store.Update(ctx, WasteMaterials, store.Filter{store.IDField: wasteID}, store.Patch{Set: map[string]any{
		"receiver_id": receiverID,
		"status":      StatusMatched,
	}}); err != nil {
		return w, false, fmt.Errorf("claim waste: %w", err)
	}
	w.ReceiverID = receiverID
	w.Status = StatusMatched

	return w, a.notifier.NotifyWasteRequested(ctx, w.ContactPhone, w), nil
}

// WasteHistory lists recent listings a user offered or received.
func (a *App) WasteHistory(ctx context.Context, userID string) ([]foodbridge.WasteListing, error) {
	return store.FindAs[foodbridge.WasteListing](ctx, a.store, WasteMaterials, store.Filter{"$or": []store.Filter{
		{"supplier_id": userID},
		{"receiver_id": userID},
	}}, HistoryLimit)
}
