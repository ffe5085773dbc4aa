package api

import (
	"errors"
	"net/http"
	"strconv"

	"foodbridge"
	"foodbridge/app"
	"foodbridge/workflow"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req app.Registration
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := s.app.RegisterUser(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := s.app.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.app.User(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p foodbridge.UserProfile
	if !decodeBody(w, r, &p) {
		return
	}
	u, err := s.app.SaveProfile(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleSubmitDonation(w http.ResponseWriter, r *http.Request) {
	donorID, ok := actor(w, r)
	if !ok {
		return
	}
	var in app.DonationInput
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := s.app.SubmitDonation(r.Context(), donorID, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAvailableDonations(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.AvailableDonations(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type claimResponse[T any] struct {
	Item     T    `json:"item"`
	Notified bool `json:"notified"`
}

func (s *Server) handleRequestDonation(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := actor(w, r)
	if !ok {
		return
	}
	d, notified, err := s.app.RequestDonation(r.Context(), recipientID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse[foodbridge.Donation]{Item: d, Notified: notified})
}

func (s *Server) handleDonationHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.DonationHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOfferWaste(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := actor(w, r)
	if !ok {
		return
	}
	var in app.WasteInput
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := s.app.OfferWaste(r.Context(), supplierID, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAvailableWaste(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.AvailableWaste(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRequestWaste(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := actor(w, r)
	if !ok {
		return
	}
	item, notified, err := s.app.RequestWaste(r.Context(), receiverID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse[foodbridge.WasteListing]{Item: item, Notified: notified})
}

func (s *Server) handleWasteHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.WasteHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGenerateMealPlan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.GenerateMealPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleLatestMealPlan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.LatestMealPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleNutritionInsights(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.NutritionInsights(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCalculateImpact(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.CalculateImpact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleImpactSummary(w http.ResponseWriter, r *http.Request) {
	si, err := s.app.ImpactSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, si)
}

func (s *Server) handleShareImpact(w http.ResponseWriter, r *http.Request) {
	sent, err := s.app.ShareImpact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"notified": sent})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	board, err := s.app.Leaderboard(r.Context(), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.PredictHotspots(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAvailableDeliveries(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.AvailableDeliveries(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMyDeliveries(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.MyDeliveries(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleConfirmPickup(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := actor(w, r)
	if !ok {
		return
	}
	notified, err := s.app.ConfirmPickup(r.Context(), r.PathValue("id"), partnerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"notified": notified})
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := actor(w, r)
	if !ok {
		return
	}
	notified, err := s.app.ConfirmDelivery(r.Context(), r.PathValue("id"), partnerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"notified": notified})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.app.DeliveryPerformance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleApplyChampion(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var in app.ChampionInput
	if !decodeBody(w, r, &in) {
		return
	}
	application, notified, err := s.app.ApplyChampion(r.Context(), userID, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claimResponse[foodbridge.ChampionApplication]{Item: application, Notified: notified})
}

func (s *Server) handleLeaveChampions(w http.ResponseWriter, r *http.Request) {
	if err := s.app.LeaveChampions(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChampionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.ChampionStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePendingNearby(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.PendingNearby(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFacilitate(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Facilitate(r.Context(), r.PathValue("id"), r.PathValue("donation")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Workflows().Names())
}

type runResponse struct {
	RunID  string         `json:"run_id"`
	Output workflow.State `json:"output"`
}

// handleRunWorkflow runs a workflow with the request body as its input state.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	var input workflow.State
	if !decodeBody(w, r, &input) {
		return
	}
	res, err := s.app.Workflows().Run(r.Context(), r.PathValue("name"), input)
	var nodeErr *workflow.NodeError
	switch {
	case errors.As(err, &nodeErr):
		writeError(w, http.StatusUnprocessableEntity, nodeErr.Error())
		return
	case err != nil:
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: res.RunID, Output: res.Output})
}
