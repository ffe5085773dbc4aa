package foodbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Model is the language-model collaborator: plain text in, plain text out.
type Model interface {
	Submit(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Messenger delivers a single text message to an E.164 phone number.
type Messenger interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Location is the address block shared by donations, waste listings and users.
type Location struct {
	Address string `json:"address"`
}

// Donation is a surplus food offer stored in the food_donations collection.
type Donation struct {
	ID                  string     `json:"_id,omitempty"`
	DonorID             string     `json:"donor_id,omitempty"`
	Type                string     `json:"type"`
	Quantity            string     `json:"quantity"`
	ExpiryDate          string     `json:"expiry_date,omitempty"`
	Location            Location   `json:"location"`
	SpecialRequirements string     `json:"special_requirements,omitempty"`
	DonorPhone          string     `json:"donor_phone,omitempty"`
	Status              string     `json:"status,omitempty"`
	RecipientID         string     `json:"recipient_id,omitempty"`
	ChampionID          string     `json:"champion_id,omitempty"`
	DeliveryPartnerID   string     `json:"delivery_partner_id,omitempty"`
	DeliveryStatus      string     `json:"delivery_status,omitempty"`
	PickupTime          *time.Time `json:"pickup_time,omitempty"`
	DeliveryStartTime   *time.Time `json:"delivery_start_time,omitempty"`
	DeliveryEndTime     *time.Time `json:"delivery_end_time,omitempty"`
	DurationMinutes     float64    `json:"delivery_duration_minutes,omitempty"`
	CreatedAt           string     `json:"created_at,omitempty"`
}

// WasteListing is a business waste material offered for reuse.
type WasteListing struct {
	ID           string   `json:"_id,omitempty"`
	SupplierID   string   `json:"supplier_id,omitempty"`
	Type         string   `json:"type"`
	Quantity     string   `json:"quantity"`
	Composition  string   `json:"composition,omitempty"`
	Location     Location `json:"location"`
	ContactPhone string   `json:"contact_phone,omitempty"`
	Status       string   `json:"status,omitempty"`
	ReceiverID   string   `json:"receiver_id,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

// Recipient is an organisation that can receive donated food.
type Recipient struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Needs    []string `json:"needs,omitempty"`
	Capacity string   `json:"capacity,omitempty"`
	Location Location `json:"location"`
}

// WasteUser is a business registered as able to repurpose some waste types.
type WasteUser struct {
	ID         string   `json:"_id"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name,omitempty"`
	WasteTypes []string `json:"waste_types,omitempty"`
	Uses       string   `json:"uses,omitempty"`
	Location   Location `json:"location"`
}

// User is an account in the users collection.
type User struct {
	ID           string `json:"_id,omitempty"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Role         string `json:"role"`
	PasswordHash string `json:"password_hash,omitempty"`
	Location     string `json:"location,omitempty"`
	UserProfile
}

// UserProfile carries the nutrition inputs of a user.
type UserProfile struct {
	Age                int      `json:"age,omitempty"`
	Gender             string   `json:"gender,omitempty"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	HealthGoals        []string `json:"health_goals,omitempty"`
	ActivityLevel      string   `json:"activity_level,omitempty"`
}

// Complete reports whether the profile has enough data for meal planning.
func (p UserProfile) Complete() bool {
	return len(p.DietaryPreferences) > 0 && len(p.HealthGoals) > 0
}

// Produce is a locally available produce record.
type Produce struct {
	ID       string  `json:"_id,omitempty"`
	Name     string  `json:"name"`
	Supplier string  `json:"supplier,omitempty"`
	Season   string  `json:"season,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// FoodItem is a rescued item fed into the impact calculation.
type FoodItem struct {
	Type     string `json:"type"`
	Quantity string `json:"quantity"`
}

// MatchResult is the model's selection for an offer. Only one of RecipientID
// or UserID is set depending on the offer kind.
type MatchResult struct {
	RecipientID   string         `json:"recipient_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Justification string         `json:"justification,omitempty"`
	Raw           map[string]any `json:"-"`
}

// CandidateID returns whichever identifier the model selected.
func (m MatchResult) CandidateID() string {
	if m.RecipientID != "" {
		return m.RecipientID
	}
	return m.UserID
}

// Found reports whether the model named any candidate.
func (m MatchResult) Found() bool {
	return m.CandidateID() != ""
}

// Weekdays is the display order of a weekly meal plan.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// MealPlan is the model-generated weekly plan. Its shape is advisory, so all
// members are optional.
type MealPlan struct {
	Days               map[string]DayMeals `json:"days,omitempty"`
	ShoppingList       []string            `json:"shopping_list,omitempty"`
	NutritionalSummary map[string]any      `json:"nutritional_summary,omitempty"`
}

// DayMeals holds the meals of one day.
type DayMeals struct {
	Breakfast *Meal `json:"breakfast,omitempty"`
	Lunch     *Meal `json:"lunch,omitempty"`
	Dinner    *Meal `json:"dinner,omitempty"`
}

// Meal is a single planned meal.
type Meal struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Ingredients []string       `json:"ingredients,omitempty"`
	Nutrition   map[string]any `json:"nutrition,omitempty"`
}

// UnmarshalJSON accepts "week" as an alias for "days".
func (mp *MealPlan) UnmarshalJSON(b []byte) error {
	type plain MealPlan
	var aux struct {
		plain
		Week map[string]DayMeals `json:"week,omitempty"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*mp = MealPlan(aux.plain)
	if len(mp.Days) == 0 && len(aux.Week) > 0 {
		mp.Days = aux.Week
	}
	return nil
}

// OrderedDays returns the plan's day names, weekdays first in calendar order
// followed by any other keys the model used.
func (mp *MealPlan) OrderedDays() []string {
	days := make([]string, 0, len(mp.Days))
	seen := make(map[string]bool, len(mp.Days))
	for _, d := range Weekdays {
		for k := range mp.Days {
			if strings.EqualFold(k, d) && !seen[k] {
				days = append(days, k)
				seen[k] = true
			}
		}
	}
	rest := make([]string, 0)
	for k := range mp.Days {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(days, rest...)
}

// IsValid checks that the plan has at least one day with at least one named meal.
func (mp *MealPlan) IsValid() bool {
	if len(mp.Days) == 0 {
		return false
	}
	for _, day := range mp.Days {
		for _, m := range []*Meal{day.Breakfast, day.Lunch, day.Dinner} {
			if m != nil && m.Name != "" {
				return true
			}
		}
	}
	return false
}

// MealPlanOutcome is the tagged result of meal-plan generation: either Plan is
// set or Error/Details describe the failure.
type MealPlanOutcome struct {
	Plan    *MealPlan `json:"plan,omitempty"`
	Raw     any       `json:"raw,omitempty"`
	Error   string    `json:"error,omitempty"`
	Details string    `json:"details,omitempty"`
}

// Failed reports whether generation failed.
func (o MealPlanOutcome) Failed() bool {
	return o.Error != ""
}

// ImpactReport is the combined output of the impact calculation workflow.
type ImpactReport struct {
	NutritionalImpact   map[string]any      `json:"nutritional_impact"`
	EnvironmentalImpact EnvironmentalImpact `json:"environmental_impact"`
}

// EnvironmentalImpact is the fixed linear estimate for rescued items.
type EnvironmentalImpact struct {
	CO2Saved     float64 `json:"co2_saved"`
	WasteReduced float64 `json:"waste_reduced"`
}

// SocialImpact accumulates a user's contributions.
type SocialImpact struct {
	ID            string  `json:"_id,omitempty"`
	UserID        string  `json:"user_id"`
	MealsProvided float64 `json:"meals_provided"`
	CO2Saved      float64 `json:"co2_saved"`
	WasteReduced  float64 `json:"waste_reduced"`
	Score         float64 `json:"score"`
}

// DeliveryLog is one delivery status transition.
type DeliveryLog struct {
	ID         string    `json:"_id,omitempty"`
	DeliveryID string    `json:"delivery_id"`
	PartnerID  string    `json:"partner_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChampionApplication is a request to become a local champion.
type ChampionApplication struct {
	ID           string `json:"_id,omitempty"`
	UserID       string `json:"user_id"`
	Location     string `json:"location"`
	Experience   string `json:"experience,omitempty"`
	Availability string `json:"availability,omitempty"`
	Motivation   string `json:"motivation,omitempty"`
	Status       string `json:"status"`
}

// HotspotConditions describe current supply and demand per address. Trend
// rows carry the address in _id.
type HotspotConditions struct {
	TimePeriod     string           `json:"time_period"`
	DonationTrends []map[string]any `json:"donation_trends"`
	RequestTrends  []map[string]any `json:"request_trends"`
}
