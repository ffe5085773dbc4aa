package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"foodbridge"
)

const donationSystemPrompt = `You are an assistant that matches surplus food donations with organizations that can use them.
Analyze the food donation details and select the single most suitable recipient based on their needs,
capacity and location proximity.

Return ONLY a JSON object matching the schema you are given. If no recipient fits, return an empty recipient_id.`

const wasteSystemPrompt = `You are an assistant that facilitates waste exchange between businesses.
Analyze the waste material and select the business best able to repurpose it. Explain how the
material can be transformed and used by the receiving business.

Return ONLY a JSON object matching the schema you are given. If no business fits, return an empty user_id.`

const mealPlanSystemPrompt = `You are a nutritionist who creates personalized meal plans.
Generate a 7-day meal plan with breakfast, lunch and dinner for every day that matches the user's
preferences and uses locally available produce where possible.

Respond with valid JSON only.`

const nutritionSystemPrompt = `You are a nutritionist estimating nutrient totals for rescued food.
Given a list of food items with free-text quantities, estimate the combined calories and
macronutrients they provide. Respond with valid JSON only.`

const hotspotSystemPrompt = `You are an analyst that predicts areas at risk of food insecurity. Analyze the historical
hotspot data and current donation and request trends to identify potential hunger hotspots. Consider
food supply, demand and seasonal patterns. Respond with valid JSON only.`

const maxProduceInPrompt = 50

func donationPrompt(d foodbridge.Donation, recipients []foodbridge.Recipient) string {
	var b strings.Builder
	b.WriteString("Food Donation Details:\n")
	fmt.Fprintf(&b, "- Type: %s\n", orNA(d.Type))
	fmt.Fprintf(&b, "- Quantity: %s\n", orNA(d.Quantity))
	fmt.Fprintf(&b, "- Expiry Date: %s\n", orNA(d.ExpiryDate))
	fmt.Fprintf(&b, "- Location: %s\n", orNA(d.Location.Address))
	fmt.Fprintf(&b, "- Special Requirements: %s\n", orValue(d.SpecialRequirements, "None"))
	b.WriteString("\nPotential Recipients:\n")
	b.WriteString(indented(recipients))
	b.WriteString("\n\nSelect the best match and justify your choice.\n\nJSON Schema:\n")
	b.WriteString(schemaText(donationMatchSchema()))
	return b.String()
}

func wastePrompt(w foodbridge.WasteListing, users []foodbridge.WasteUser) string {
	var b strings.Builder
	b.WriteString("Waste Material Details:\n")
	fmt.Fprintf(&b, "- Type: %s\n", orNA(w.Type))
	fmt.Fprintf(&b, "- Quantity: %s\n", orNA(w.Quantity))
	fmt.Fprintf(&b, "- Composition: %s\n", orNA(w.Composition))
	fmt.Fprintf(&b, "- Location: %s\n", orNA(w.Location.Address))
	b.WriteString("\nPotential Users:\n")
	b.WriteString(indented(users))
	b.WriteString("\n\nSelect the best match and explain how the waste can be repurposed.\n\nJSON Schema:\n")
	b.WriteString(schemaText(wasteMatchSchema()))
	return b.String()
}

func mealPlanPrompt(p foodbridge.UserProfile, produce []foodbridge.Produce) string {
	var b strings.Builder
	b.WriteString("User Profile:\n")
	fmt.Fprintf(&b, "- Age: %s\n", ageText(p.Age))
	fmt.Fprintf(&b, "- Gender: %s\n", orNA(p.Gender))
	fmt.Fprintf(&b, "- Dietary Preferences: %s\n", strings.Join(p.DietaryPreferences, ", "))
	fmt.Fprintf(&b, "- Allergies: %s\n", strings.Join(p.Allergies, ", "))
	fmt.Fprintf(&b, "- Health Goals: %s\n", strings.Join(p.HealthGoals, ", "))
	fmt.Fprintf(&b, "- Activity Level: %s\n", orValue(p.ActivityLevel, "moderate"))

	b.WriteString("\nAvailable Local Produce:\n")
	if len(produce) == 0 {
		b.WriteString("None available")
	} else {
		if len(produce) > maxProduceInPrompt {
			produce = produce[:maxProduceInPrompt]
		}
		b.WriteString(indented(produce))
	}

	b.WriteString(`

Create a detailed meal plan that:
1. Matches the user's dietary needs and goals
2. Uses locally available ingredients when possible
3. Provides balanced nutrition
4. Includes a shopping list
5. Provides nutritional information for each meal

JSON Schema:
`)
	b.WriteString(schemaText(mealPlanSchema()))
	return b.String()
}

func nutritionPrompt(items []foodbridge.FoodItem) string {
	var b strings.Builder
	b.WriteString("Rescued Food Items:\n")
	b.WriteString(indented(items))
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(schemaText(nutritionSchema()))
	return b.String()
}

func hotspotPrompt(history []map[string]any, current foodbridge.HotspotConditions) string {
	var b strings.Builder
	b.WriteString("Historical Data:\n")
	b.WriteString(indented(nonNil(history)))
	b.WriteString("\n\nCurrent Conditions:\n")
	current.DonationTrends = nonNil(current.DonationTrends)
	current.RequestTrends = nonNil(current.RequestTrends)
	b.WriteString(indented(current))
	b.WriteString("\n\nIdentify potential hunger hotspots and predict the severity of food insecurity in each area.")
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(schemaText(hotspotSchema()))
	return b.String()
}

func nonNil(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}

func indented(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}

func orNA(s string) string { return orValue(s, "N/A") }

func orValue(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func ageText(age int) string {
	if age <= 0 {
		return "N/A"
	}
	return fmt.Sprint(age)
}

func weekdays() []string { return foodbridge.Weekdays }
