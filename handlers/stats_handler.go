package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"safeMateAPI/middleware"
	"safeMateAPI/services"
	"time"
)

type StatsHandler struct {
	statsService       *services.StatsService
	achievementService *services.AchievementService
}

func NewStatsHandler(statsService *services.StatsService, achievementService *services.AchievementService) *StatsHandler {
	return &StatsHandler{
		statsService:       statsService,
		achievementService: achievementService,
	}
}

func (h *StatsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	dashboard, err := h.statsService.GetDashboard(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, dashboard)
}

func (h *StatsHandler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	achievements, err := h.achievementService.GetAchievements(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, achievements)
}

type logActivityRequest struct {
	Metadata *string `json:"metadata,omitempty"`
}

func (h *StatsHandler) CompleteActivity(w http.ResponseWriter, r *http.Request) {
	h.logActivity(w, r, "activity")
}

func (h *StatsHandler) LogChat(w http.ResponseWriter, r *http.Request) {
	h.logActivity(w, r, "ai_chat")
}

func (h *StatsHandler) logActivity(w http.ResponseWriter, r *http.Request, activityType string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req logActivityRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.statsService.LogActivity(ctx, clerkID, activityType, req.Metadata); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.achievementService.CheckAndUnlock(ctx, clerkID)
	}()

	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Activity logged"})
}
