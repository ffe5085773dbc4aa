// Package api serves the application services as a JSON HTTP API.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"foodbridge/app"
	"foodbridge/workflow"
)

// UserHeader carries the id of the acting user.
const UserHeader = "X-User-ID"

// maxBodySize caps request bodies at 1 MB.
const maxBodySize = 1 << 20

type Server struct {
	app *app.App
	mux *http.ServeMux
}

func NewServer(a *app.App) *Server {
	s := &Server{app: a, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /users", s.handleRegister)
	s.mux.HandleFunc("POST /sessions", s.handleLogin)
	s.mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	s.mux.HandleFunc("PUT /users/{id}/profile", s.handleSaveProfile)

	s.mux.HandleFunc("POST /donations", s.handleSubmitDonation)
	s.mux.HandleFunc("GET /donations", s.handleAvailableDonations)
	s.mux.HandleFunc("POST /donations/{id}/request", s.handleRequestDonation)
	s.mux.HandleFunc("GET /users/{id}/donations", s.handleDonationHistory)

	s.mux.HandleFunc("POST /waste", s.handleOfferWaste)
	s.mux.HandleFunc("GET /waste", s.handleAvailableWaste)
	s.mux.HandleFunc("POST /waste/{id}/request", s.handleRequestWaste)
	s.mux.HandleFunc("GET /users/{id}/waste", s.handleWasteHistory)

	s.mux.HandleFunc("POST /users/{id}/meal-plans", s.handleGenerateMealPlan)
	s.mux.HandleFunc("GET /users/{id}/meal-plans/latest", s.handleLatestMealPlan)
	s.mux.HandleFunc("GET /users/{id}/nutrition", s.handleNutritionInsights)

	s.mux.HandleFunc("POST /users/{id}/impact", s.handleCalculateImpact)
	s.mux.HandleFunc("GET /users/{id}/impact", s.handleImpactSummary)
	s.mux.HandleFunc("POST /users/{id}/impact/share", s.handleShareImpact)
	s.mux.HandleFunc("GET /impact/leaderboard", s.handleLeaderboard)
	s.mux.HandleFunc("GET /hotspots", s.handleHotspots)

	s.mux.HandleFunc("GET /deliveries/available", s.handleAvailableDeliveries)
	s.mux.HandleFunc("GET /partners/{id}/deliveries", s.handleMyDeliveries)
	s.mux.HandleFunc("POST /deliveries/{id}/pickup", s.handleConfirmPickup)
	s.mux.HandleFunc("POST /deliveries/{id}/deliver", s.handleConfirmDelivery)
	s.mux.HandleFunc("GET /partners/{id}/performance", s.handlePerformance)

	s.mux.HandleFunc("POST /champions", s.handleApplyChampion)
	s.mux.HandleFunc("DELETE /champions/{id}", s.handleLeaveChampions)
	s.mux.HandleFunc("GET /champions/{id}/stats", s.handleChampionStats)
	s.mux.HandleFunc("GET /champions/{id}/nearby", s.handlePendingNearby)
	s.mux.HandleFunc("POST /champions/{id}/donations/{donation}", s.handleFacilitate)

	s.mux.HandleFunc("GET /workflows", s.handleListWorkflows)
	s.mux.HandleFunc("POST /workflows/{name}/run", s.handleRunWorkflow)
}

// ServeHTTP logs every request after it is handled.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	slog.Info("API: Request handled",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("API: Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError maps service errors to status codes.
func writeAppError(w http.ResponseWriter, err error) {
	var nodeErr *workflow.NodeError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, workflow.ErrUnknownWorkflow):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrProfileIncomplete):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, app.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrEmailTaken), errors.Is(err, app.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, app.ErrMealPlanFailed), errors.Is(err, app.ErrPredictionFailed), errors.As(err, &nodeErr):
		status = http.StatusBadGateway
	case errors.Is(err, app.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("API: Request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// actor returns the acting user id, writing 401 when the header is missing.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(UserHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, UserHeader+" header is required")
		return "", false
	}
	return id, true
}
