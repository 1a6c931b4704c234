package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"safeMateAPI/internal/safety"
	"safeMateAPI/middleware"
	"safeMateAPI/services"
	"strconv"
	"time"

	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SafetyHandler struct {
	safetyService *services.SafetyService
	live          *services.LiveShareManager
}

func NewSafetyHandler(safetyService *services.SafetyService, live *services.LiveShareManager) *SafetyHandler {
	return &SafetyHandler{
		safetyService: safetyService,
		live:          live,
	}
}

func (h *SafetyHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var opts safety.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snapshot, sessionID, err := h.safetyService.StartSession(ctx, clerkID, opts)
	if err != nil {
		if errors.Is(err, safety.ErrAlreadyMonitoring) {
			respondWithError(w, http.StatusConflict, "A safety session is already active")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"ws_url":     "/api/v1/safety/ws/" + sessionID,
		"state":      snapshot,
	})
}

func (h *SafetyHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	snapshot, err := h.safetyService.StopSession(ctx, clerkID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveSession) {
			respondWithError(w, http.StatusNotFound, "No active safety session")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"state": snapshot})
}

type checkInRequest struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (h *SafetyHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req checkInRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	snapshot, err := h.safetyService.CheckIn(ctx, clerkID, req.Latitude, req.Longitude)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveSession) || errors.Is(err, safety.ErrNotMonitoring) {
			respondWithError(w, http.StatusNotFound, "No active safety session")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"state": snapshot})
}

func (h *SafetyHandler) Location(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var sample safety.LocationSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	snapshot, err := h.safetyService.Location(ctx, clerkID, sample)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveSession) || errors.Is(err, safety.ErrNotMonitoring) {
			respondWithError(w, http.StatusNotFound, "No active safety session")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"state": snapshot})
}

type batteryRequest struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

func (h *SafetyHandler) Battery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req batteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Level < 0 || req.Level > 1 {
		respondWithError(w, http.StatusBadRequest, "Battery level must be between 0 and 1")
		return
	}

	snapshot, err := h.safetyService.Battery(ctx, clerkID, req.Level, req.Charging)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveSession) || errors.Is(err, safety.ErrNotMonitoring) {
			respondWithError(w, http.StatusNotFound, "No active safety session")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"state": snapshot})
}

func (h *SafetyHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	snapshot, sessionID, err := h.safetyService.GetSnapshot(ctx, clerkID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveSession) {
			respondWithJSON(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"active":     true,
		"session_id": sessionID,
		"state":      snapshot,
	})
}

func (h *SafetyHandler) GetSessionEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	vars := mux.Vars(r)
	sessionID := vars["sessionID"]

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	events, err := h.safetyService.GetSessionEvents(ctx, clerkID, sessionID, limit)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, events)
}

// JoinLiveSession upgrades to a websocket and attaches the caller to the
// session's live room. The route sits outside the auth middleware, so the
// monitored user's own device identifies itself with a Clerk token in the
// query string (browsers can't set headers on websocket requests);
// everyone else is a read-only watcher.
func (h *SafetyHandler) JoinLiveSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["sessionID"]

	ownerClerkID, active := h.safetyService.SessionOwner(sessionID)
	if !active {
		http.Error(w, "Safety session not found", http.StatusNotFound)
		return
	}

	callerID := liveCallerID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &services.LiveClient{
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  callerID,
		IsOwner: callerID != "" && callerID == ownerClerkID,
	}

	h.live.RegisterClient(sessionID, ownerClerkID, client)
	go client.WritePump()
	go client.ReadPump()
}

// liveCallerID resolves the caller's Clerk ID from the query-string token.
// An absent or invalid token is not an error: the caller just joins as an
// anonymous watcher.
func liveCallerID(r *http.Request) string {
	if callerID, ok := middleware.GetClerkID(r.Context()); ok {
		return callerID
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		return ""
	}

	claims, err := jwt.Verify(r.Context(), &jwt.VerifyParams{Token: token})
	if err != nil {
		log.Printf("Live session token verification failed: %v", err)
		return ""
	}
	return claims.Subject
}
