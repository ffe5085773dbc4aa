// Package mock provides deterministic language models for tests and offline
// demos.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"foodbridge"
)

// ErrScriptExhausted is returned by a scripted model with no replies left and
// no fallback.
var ErrScriptExhausted = errors.New("mock: no scripted reply left")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Call records one Submit invocation.
type Call struct {
	SystemPrompt string
	UserPrompt   string
}

// Model answers Submit calls from a script, then from Fallback.
type Model struct {
	mu       sync.Mutex
	script   []Reply
	calls    []Call
	Fallback func(systemPrompt, userPrompt string) (string, error)
}

var _ foodbridge.Model = (*Model)(nil)

// NewModel returns a model that replays replies in order.
func NewModel(replies ...Reply) *Model {
	return &Model{script: replies}
}

// Texts is shorthand for a script of successful replies.
func Texts(texts ...string) *Model {
	replies := make([]Reply, 0, len(texts))
	for _, t := range texts {
		replies = append(replies, Reply{Text: t})
	}
	return NewModel(replies...)
}

// Failing returns a model whose every call fails with err.
func Failing(err error) *Model {
	return &Model{Fallback: func(string, string) (string, error) { return "", err }}
}

func (m *Model) Submit(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return r.Text, r.Err
	}
	fallback := m.Fallback
	m.mu.Unlock()

	if fallback == nil {
		return "", ErrScriptExhausted
	}
	return fallback(systemPrompt, userPrompt)
}

// Calls returns a copy of the recorded invocations.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

var (
	recipientIDPattern = regexp.MustCompile(`"_id":\s*"([^"]+)"`)
	wasteUserIDPattern = regexp.MustCompile(`"user_id":\s*"([^"]+)"`)
)

// Demo returns a model that answers every prompt kind the agents send with a
// fixed, plausible response. Matching picks the first candidate listed.
func Demo() *Model {
	return &Model{Fallback: demoReply}
}

func demoReply(systemPrompt, userPrompt string) (string, error) {
	sys := strings.ToLower(systemPrompt)
	switch {
	case strings.Contains(sys, "waste exchange"):
		slog.Info("LLM_CLIENT: Returning demo waste match")
		return matchReply("user_id", wasteUserIDPattern, userPrompt, "Their listed uses fit this material.")

	case strings.Contains(sys, "surplus food"):
		slog.Info("LLM_CLIENT: Returning demo donation match")
		return matchReply("recipient_id", recipientIDPattern, userPrompt, "Closest recipient with matching needs.")

	case strings.Contains(sys, "meal plan"):
		slog.Info("LLM_CLIENT: Returning demo meal plan")
		return "```json\n" + demoMealPlan() + "\n```", nil

	case strings.Contains(sys, "hunger hotspots"):
		slog.Info("LLM_CLIENT: Returning demo hotspot prediction")
		return `{"hotspots": [{"location": "Central District", "latitude": 12.9716, "longitude": 77.5946, "severity": 0.7, "factors": ["requests outpace donations"]}], "summary": "Demand is concentrated in the central district."}`, nil

	case strings.Contains(sys, "nutrient"):
		slog.Info("LLM_CLIENT: Returning demo nutrition estimate")
		return `{"calories": 2400, "protein_g": 80, "carbs_g": 300, "fat_g": 70}`, nil
	}

	return "I am a demo model and have nothing to add.", nil
}

func matchReply(key string, pattern *regexp.Regexp, userPrompt, justification string) (string, error) {
	m := pattern.FindStringSubmatch(userPrompt)
	if m == nil {
		return fmt.Sprintf(`{"%s": "", "justification": "No candidates were listed."}`, key), nil
	}
	b, err := json.Marshal(map[string]string{key: m[1], "justification": justification})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func demoMealPlan() string {
	days := make(map[string]any, len(foodbridge.Weekdays))
	for _, d := range foodbridge.Weekdays {
		days[d] = map[string]any{
			"breakfast": demoMeal("Oat porridge", "oats", "apple"),
			"lunch":     demoMeal("Lentil salad", "lentils", "spinach", "tomato"),
			"dinner":    demoMeal("Vegetable stir fry", "rice", "carrot", "broccoli"),
		}
	}
	plan := map[string]any{
		"days":                days,
		"shopping_list":       []string{"oats", "apple", "lentils", "spinach", "tomato", "rice", "carrot", "broccoli"},
		"nutritional_summary": map[string]any{"weekly_calories": 14000, "weekly_protein": 490},
	}
	b, _ := json.MarshalIndent(plan, "", "  ")
	return string(b)
}

func demoMeal(name string, ingredients ...string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "A simple seasonal dish.",
		"ingredients": ingredients,
		"nutrition":   map[string]any{"calories": 650, "protein": 22},
	}
}
