// Package app holds the application services behind the HTTP API and CLI:
// user accounts, donations, waste exchange, nutrition, impact, deliveries
// and the local champion programme.
package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"foodbridge"
	"foodbridge/notify"
	"foodbridge/store"
	"foodbridge/workflow"
)

// Collection names.
const (
	Users             = "users"
	Recipients        = "recipients"
	FoodDonations     = "food_donations"
	WasteMaterials    = "waste_materials"
	WasteUsers        = "waste_users"
	MealPlans         = "meal_plans"
	LocalProduce      = "local_produce"
	NutritionalImpact = "nutritional_impact"
	SocialImpacts     = "social_impact"
	LocalChampions    = "local_champions"
	DeliveryLogs      = "delivery_logs"
	HungerHotspots    = "hunger_hotspots"
)

// Roles a user can register with.
const (
	RoleDonor           = "donor"
	RoleRecipient       = "recipient"
	RoleDeliveryPartner = "delivery_partner"
	RoleSupplier        = "supplier"
	RoleConsumer        = "consumer"
	RoleAdmin           = "admin"
)

var Roles = []string{RoleDonor, RoleRecipient, RoleDeliveryPartner, RoleSupplier, RoleConsumer, RoleAdmin}

// Offer statuses.
const (
	StatusAvailable = "available"
	StatusMatched   = "matched"
	StatusPending   = "pending"
)

// Query limits.
const (
	CandidateLimit = 50
	ListLimit      = 50
	HistoryLimit   = 10
	DeliveryLimit  = 100
	NearbyLimit    = 10
	HotspotHistory = 100
)

// ChampionScore is the social impact score at which a user is shown as a champion.
const ChampionScore = 100

var (
	ErrNotFound           = store.ErrNotFound
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrProfileIncomplete  = errors.New("profile incomplete")
	ErrConflict           = errors.New("conflicting state")
	ErrForbidden          = errors.New("forbidden")
	ErrMealPlanFailed     = errors.New("meal plan generation failed")
	ErrPredictionFailed   = errors.New("hotspot prediction failed")
	ErrUnavailable        = errors.New("service unavailable")
)

// WorkflowRunner runs the built-in workflows.
type WorkflowRunner interface {
	Run(ctx context.Context, name string, input workflow.State) (workflow.Result, error)
	Names() []string
}

// Notifier sends the user-facing WhatsApp messages.
type Notifier interface {
	Send(ctx context.Context, phone, message string) bool
	NotifyFoodMatch(ctx context.Context, donorPhone, recipientPhone string, d foodbridge.Donation) bool
	NotifyWasteExchange(ctx context.Context, supplierPhone, receiverPhone string, w foodbridge.WasteListing) bool
	NotifySocialImpact(ctx context.Context, phone string, impact foodbridge.SocialImpact) bool
	NotifyDeliveryUpdate(ctx context.Context, phone string, u notify.DeliveryUpdate, status string) bool
	NotifyDonationRequested(ctx context.Context, donorPhone string, d foodbridge.Donation) bool
	NotifyWasteRequested(ctx context.Context, supplierPhone string, w foodbridge.WasteListing) bool
	NotifyChampionApplication(ctx context.Context, phone string) bool
}

// HotspotPredictor asks the model which areas are at risk of food insecurity.
type HotspotPredictor interface {
	Predict(ctx context.Context, history []map[string]any, current foodbridge.HotspotConditions) (map[string]any, error)
}

// App bundles the services. It keeps no per-request state.
type App struct {
	store      store.Store
	workflows  WorkflowRunner
	notifier   Notifier
	hotspots   HotspotPredictor
	now        func() time.Time
	bcryptCost int
}

type Option func(*App)

// WithClock replaces the wall clock used for delivery times.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithHotspots enables hunger hotspot prediction.
func WithHotspots(p HotspotPredictor) Option {
	return func(a *App) { a.hotspots = p }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(a *App) { a.bcryptCost = cost }
}

func New(s store.Store, wf WorkflowRunner, n Notifier, opts ...Option) *App {
	a := &App{
		store:      s,
		workflows:  wf,
		notifier:   n,
		now:        func() time.Time { return time.Now().UTC() },
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store exposes the underlying document store.
func (a *App) Store() store.Store { return a.store }

// Workflows exposes the workflow runner.
func (a *App) Workflows() WorkflowRunner { return a.workflows }

// leadingInt reads the whole number that starts a quantity such as "20 kg".
func leadingInt(quantity string) (int, bool) {
	fields := strings.Fields(quantity)
	if len(fields) == 0 {
		return 0, false
	}
	for _, r := range fields[0] {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(fields[0])
	return n, err == nil
}

// leadingNumber adapts leadingInt for store accumulators.
func leadingNumber(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, ok := leadingInt(s)
	return float64(n), ok
}

func (a *App) addImpact(ctx context.Context, userID string, inc map[string]float64) error {
	_, err := a.store.Update(ctx, SocialImpacts, store.Filter{"user_id": userID}, store.Patch{
		Inc:    inc,
		Upsert: true,
	})
	return err
}

func number(v any) float64 {
	n, _ := v.(float64)
	return n
}
