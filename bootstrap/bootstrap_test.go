package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodbridge"
	"foodbridge/app"
	"foodbridge/llm/mock"
	"foodbridge/llm/ollama"
	"foodbridge/store"
	"foodbridge/store/seed"
	"foodbridge/workflow"
)

func TestLoadSettings(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "mock")
	t.Setenv("STORE_IN_MEMORY", "true")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "5")

	cfg, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.Model.Provider)
	assert.True(t, cfg.App.StoreInMemory)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, 5, cfg.Messaging.MaxAttempts)
	assert.False(t, cfg.Messaging.TwilioConfigured())
}

func TestNewDispatcherRejectsNegativeAttempts(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "mock")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "-1")

	cfg, err := LoadSettings()
	require.NoError(t, err)
	_, err = NewDispatcher(cfg.Messaging, http.DefaultClient)
	assert.Error(t, err)
}

func TestNewModel(t *testing.T) {
	ctx := context.Background()
	appCfg := foodbridge.AppConfig{BaseOllamaEndpoint: "http://localhost:11434"}

	tests := []struct {
		name     string
		cfg      foodbridge.ModelConfig
		wantType any
		wantErr  error
	}{
		{"mock", foodbridge.ModelConfig{Provider: "mock"}, &mock.Model{}, nil},
		{"provider is case insensitive", foodbridge.ModelConfig{Provider: " Mock "}, &mock.Model{}, nil},
		{"ollama", foodbridge.ModelConfig{Provider: "ollama", ModelID: "llama3.2"}, &ollama.Client{}, nil},
		{"unknown", foodbridge.ModelConfig{Provider: "gpt"}, nil, ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(ctx, tt.cfg, appCfg, http.DefaultClient)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, m)
		})
	}

	_, err := NewModel(ctx, foodbridge.ModelConfig{Provider: "ollama"}, appCfg, http.DefaultClient)
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	svc, err := Build(ctx, Settings{}, WithStore(st), WithModel(mock.Demo()))
	require.NoError(t, err)
	defer svc.Close()

	assert.ElementsMatch(t, []string{
		workflow.MealPlanning,
		workflow.FoodRedistribution,
		workflow.WasteExchange,
		workflow.ImpactCalculation,
	}, svc.Orchestrator.Names())

	u, err := svc.App.RegisterUser(ctx, app.Registration{Email: "a@example.org", Password: "pw", Role: app.RoleDonor})
	require.NoError(t, err)
	_, err = st.FindOne(ctx, app.Users, store.Filter{store.IDField: u.ID})
	assert.NoError(t, err)

	report, err := svc.App.PredictHotspots(ctx)
	require.NoError(t, err)
	assert.Contains(t, report.Prediction, "hotspots")
}

func TestNewDispatcherWithTwilio(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid": "SM123"}`))
	}))
	defer srv.Close()

	d, err := NewDispatcher(foodbridge.MessagingConfig{
		TwilioAccountSID:     "AC123",
		TwilioAuthToken:      "token",
		TwilioWhatsAppNumber: "+14155238886",
		TwilioBaseURL:        srv.URL,
		MaxAttempts:          1,
	}, srv.Client())
	require.NoError(t, err)

	assert.True(t, d.Send(context.Background(), "+441234567890", "hello"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogMessenger(t *testing.T) {
	d, err := NewDispatcher(foodbridge.MessagingConfig{}, http.DefaultClient)
	require.NoError(t, err)
	assert.True(t, d.Send(context.Background(), "+441234567890", "hello"))
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(foodbridge.AppConfig{StoreInMemory: true})
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Insert(context.Background(), app.Recipients, map[string]any{"name": "Shelter"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSeedSource(t *testing.T) {
	src, err := SeedSource(context.Background(), foodbridge.AppConfig{}, "testdata/seed.yaml")
	require.NoError(t, err)
	assert.IsType(t, &seed.FileSource{}, src)
	assert.Equal(t, "testdata/seed.yaml", src.Name())
}
