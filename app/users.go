package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"foodbridge"
	"foodbridge/store"
)

// Registration is the input of RegisterUser.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Location string `json:"location"`
}

// RegisterUser creates an account. Emails are unique and compared
// case-insensitively.
func (a *App) RegisterUser(ctx context.Context, r Registration) (foodbridge.User, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	switch {
	case email == "":
		return foodbridge.User{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	case r.Password == "":
		return foodbridge.User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	case !slices.Contains(Roles, r.Role):
		return foodbridge.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, r.Role)
	}

	_, err := a.store.FindOne(ctx, Users, store.Filter{"email": email})
	switch {
	case err == nil:
		return foodbridge.User{}, ErrEmailTaken
	case !errors.Is(err, store.ErrNotFound):
		return foodbridge.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), a.bcryptCost)
	if err != nil {
		return foodbridge.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := foodbridge.User{
		Name:         strings.TrimSpace(r.Name),
		Email:        email,
		Phone:        strings.TrimSpace(r.Phone),
		Role:         r.Role,
		PasswordHash: string(hash),
		Location:     strings.TrimSpace(r.Location),
	}
	id, err := a.store.Insert(ctx, Users, u)
	if err != nil {
		return foodbridge.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	u.PasswordHash = ""
	slog.Info("USERS: Registered user", "user_id", id, "role", u.Role)
	return u, nil
}

// Authenticate checks an email and password pair.
func (a *App) Authenticate(ctx context.Context, email, password string) (foodbridge.User, error) {
	u, err := store.FindOneAs[foodbridge.User](ctx, a.store, Users, store.Filter{
		"email": strings.ToLower(strings.TrimSpace(email)),
	})
	if errors.Is(err, store.ErrNotFound) {
		return foodbridge.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return foodbridge.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return foodbridge.User{}, ErrInvalidCredentials
	}
	u.PasswordHash = ""
	return u, nil
}

// User returns the account with id, without its password hash.
func (a *App) User(ctx context.Context, id string) (foodbridge.User, error) {
	u, err := store.FindOneAs[foodbridge.User](ctx, a.store, Users, store.Filter{store.IDField: id})
	if err != nil {
		return foodbridge.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	u.PasswordHash = ""
	return u, nil
}

// SaveProfile replaces the nutrition profile of a user.
func (a *App) SaveProfile(ctx context.Context, id string, p foodbridge.UserProfile) (foodbridge.User, error) {
	if p.Age < 0 || p.Age > 120 {
		return foodbridge.User{}, fmt.Errorf("%w: age %d out of range", ErrInvalidInput, p.Age)
	}
	allergies := make([]string, 0, len(p.Allergies))
	for _, al := range p.Allergies {
		if al = strings.TrimSpace(al); al != "" {
			allergies = append(allergies, al)
		}
	}

	n, err := a.store.Update(ctx, Users, store.Filter{store.IDField: id}, store.Patch{Set: map[string]any{
		"age":                 p.Age,
		"gender":              p.Gender,
		"dietary_preferences": p.DietaryPreferences,
		"allergies":           allergies,
		"health_goals":        p.HealthGoals,
		"activity_level":      p.ActivityLevel,
	}})
	if err != nil {
		return foodbridge.User{}, fmt.Errorf("save profile: %w", err)
	}
	if n == 0 {
		return foodbridge.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return a.User(ctx, id)
}
