package notify

import (
	"context"
	"fmt"
	"math"

	"foodbridge"
)

// Delivery statuses with a message template.
const (
	StatusPickupConfirmed = "pickup_confirmed"
	StatusDelivered       = "delivered"
)

// DeliveryUpdate carries the fields of a delivery status message.
type DeliveryUpdate struct {
	Type            string
	Quantity        string
	PartnerPhone    string
	DurationMinutes float64
	// IsRecipient selects the recipient wording of the delivered message.
	IsRecipient bool
}

func na(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// NotifyFoodMatch tells both sides of a donation match. Both messages are
// attempted; the result is true only if both were delivered.
func (d *Dispatcher) NotifyFoodMatch(ctx context.Context, donorPhone, recipientPhone string, don foodbridge.Donation) bool {
	donorMsg := fmt.Sprintf(`Food Match Notification

Your food donation has been matched!

Item: %s
Quantity: %s

The recipient will contact you shortly to arrange pickup.
Thank you for reducing food waste!`, na(don.Type), na(don.Quantity))

	recipientMsg := fmt.Sprintf(`Food Availability Notification

A food donation matching your needs is available!

Item: %s
Quantity: %s
Expiry: %s
Location: %s

Please contact the donor to arrange pickup.`, na(don.Type), na(don.Quantity), na(don.ExpiryDate), na(don.Location.Address))

	donorOK := d.Send(ctx, donorPhone, donorMsg)
	recipientOK := d.Send(ctx, recipientPhone, recipientMsg)
	return donorOK && recipientOK
}

// NotifyWasteExchange tells both sides of a waste match.
func (d *Dispatcher) NotifyWasteExchange(ctx context.Context, supplierPhone, receiverPhone string, w foodbridge.WasteListing) bool {
	supplierMsg := fmt.Sprintf(`Waste Exchange Notification

Your waste material has found a new purpose!

Type: %s
Quantity: %s

The receiving business will contact you shortly.
Thank you for participating in the circular economy!`, na(w.Type), na(w.Quantity))

	receiverMsg := fmt.Sprintf(`Waste Availability Notification

A waste material you can repurpose is available!

Type: %s
Quantity: %s
Location: %s

Please contact the supplier to arrange pickup.`, na(w.Type), na(w.Quantity), na(w.Location.Address))

	supplierOK := d.Send(ctx, supplierPhone, supplierMsg)
	receiverOK := d.Send(ctx, receiverPhone, receiverMsg)
	return supplierOK && receiverOK
}

func (d *Dispatcher) NotifySocialImpact(ctx context.Context, phone string, impact foodbridge.SocialImpact) bool {
	msg := fmt.Sprintf(`Social Impact Update

Your recent activities have made a difference!

Meals Provided: %g
CO2 Saved: %g kg
Waste Reduced: %g kg

Thank you for contributing to a sustainable future!`, impact.MealsProvided, impact.CO2Saved, impact.WasteReduced)
	return d.Send(ctx, phone, msg)
}

// NotifyDeliveryUpdate sends the message for status. Unknown statuses send
// nothing and report false.
func (d *Dispatcher) NotifyDeliveryUpdate(ctx context.Context, phone string, u DeliveryUpdate, status string) bool {
	var msg string
	switch status {
	case StatusPickupConfirmed:
		msg = fmt.Sprintf(`Delivery Update - Pickup Confirmed

Your food donation has been picked up by our delivery partner.

Item: %s
Quantity: %s

Estimated delivery time: 30-60 minutes
Delivery Partner Contact: %s

Thank you for using our service!`, na(u.Type), na(u.Quantity), na(u.PartnerPhone))

	case StatusDelivered:
		if u.IsRecipient {
			msg = fmt.Sprintf(`Delivery Update - Completed

Your food donation has been delivered!

Item: %s
Quantity: %s
Delivery Time: %d minutes

Thank you for using our service!`, na(u.Type), na(u.Quantity), int(math.Floor(u.DurationMinutes)))
		} else {
			msg = fmt.Sprintf(`Delivery Update - Completed

Your food donation has been successfully delivered to the recipient!

Item: %s
Quantity: %s

Thank you for your contribution!`, na(u.Type), na(u.Quantity))
		}

	default:
		return false
	}
	return d.Send(ctx, phone, msg)
}

// NotifyDonationRequested tells a donor that a recipient claimed their donation.
func (d *Dispatcher) NotifyDonationRequested(ctx context.Context, donorPhone string, don foodbridge.Donation) bool {
	msg := fmt.Sprintf(`Food Request Notification

Your donation has been requested!

Item: %s
Quantity: %s

The recipient will contact you shortly to arrange pickup.`, na(don.Type), na(don.Quantity))
	return d.Send(ctx, donorPhone, msg)
}

// NotifyWasteRequested tells a supplier that a business claimed their material.
func (d *Dispatcher) NotifyWasteRequested(ctx context.Context, supplierPhone string, w foodbridge.WasteListing) bool {
	msg := fmt.Sprintf(`Waste Request Notification

Your waste material has been requested!

Type: %s
Quantity: %s

The requester will contact you shortly to arrange pickup.`, na(w.Type), na(w.Quantity))
	return d.Send(ctx, supplierPhone, msg)
}

func (d *Dispatcher) NotifyChampionApplication(ctx context.Context, phone string) bool {
	return d.Send(ctx, phone, `Local Champion Application Received

Thank you for applying to be a Local Champion!

We'll review your application and get back to you soon.

In the meantime, keep contributing to the platform to strengthen your application.`)
}
