package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_Script(t *testing.T) {
	boom := errors.New("boom")
	m := NewModel(Reply{Text: "first"}, Reply{Err: boom})
	ctx := context.Background()

	got, err := m.Submit(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	_, err = m.Submit(ctx, "s2", "u2")
	assert.ErrorIs(t, err, boom)

	_, err = m.Submit(ctx, "s3", "u3")
	assert.ErrorIs(t, err, ErrScriptExhausted)

	calls := m.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, Call{SystemPrompt: "s2", UserPrompt: "u2"}, calls[1])
}

func TestModel_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Texts("never").Submit(ctx, "", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailing(t *testing.T) {
	boom := errors.New("upstream down")
	m := Failing(boom)
	for range 2 {
		_, err := m.Submit(context.Background(), "", "")
		assert.ErrorIs(t, err, boom)
	}
}

func TestDemo(t *testing.T) {
	tests := []struct {
		name     string
		system   string
		user     string
		contains string
	}{
		{
			name:     "donation match picks first recipient",
			system:   "You match surplus food donations with recipients.",
			user:     `[{"_id": "r-1", "name": "Shelter"}, {"_id": "r-2"}]`,
			contains: `"recipient_id":"r-1"`,
		},
		{
			name:     "waste match picks first user",
			system:   "You facilitate waste exchange between businesses.",
			user:     `[{"_id": "wu-1", "user_id": "u-9"}]`,
			contains: `"user_id":"u-9"`,
		},
		{
			name:     "no candidates",
			system:   "You facilitate waste exchange between businesses.",
			user:     `[]`,
			contains: `"user_id": ""`,
		},
		{
			name:     "meal plan is fenced json",
			system:   "You are a nutritionist who writes a meal plan.",
			contains: "```json",
		},
		{
			name:     "hotspot prediction",
			system:   "Identify potential hunger hotspots.",
			contains: `"hotspots"`,
		},
		{
			name:     "nutrition estimate",
			system:   "Estimate nutrient totals.",
			contains: `"calories"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Demo().Submit(context.Background(), tt.system, tt.user)
			require.NoError(t, err)
			assert.Contains(t, got, tt.contains)
		})
	}
}
