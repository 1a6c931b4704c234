package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"safeMateAPI/internal/integration"
	"safeMateAPI/middleware"
	"safeMateAPI/services"
	"time"

	"github.com/gorilla/mux"
)

type IntegrationHandler struct {
	integrationService *services.IntegrationService
	tavusService       *services.TavusService
	telegramService    *services.TelegramService
	userService        *services.UserService
	statsService       *services.StatsService
}

func NewIntegrationHandler(
	integrationService *services.IntegrationService,
	tavusService *services.TavusService,
	telegramService *services.TelegramService,
	userService *services.UserService,
	statsService *services.StatsService,
) *IntegrationHandler {
	return &IntegrationHandler{
		integrationService: integrationService,
		tavusService:       tavusService,
		telegramService:    telegramService,
		userService:        userService,
		statsService:       statsService,
	}
}

// respondVendorError translates proxy failures into the right client
// status: missing key is the user's configuration problem, a vendor error
// passes through its mapped message as 502.
func respondVendorError(w http.ResponseWriter, err error) {
	if errors.Is(err, integration.ErrAPIKeyMissing) {
		respondWithError(w, http.StatusPreconditionFailed, "API key not configured")
		return
	}

	var vendorErr *integration.VendorError
	if errors.As(err, &vendorErr) {
		respondWithError(w, http.StatusBadGateway, vendorErr.Message())
		return
	}

	respondWithError(w, http.StatusInternalServerError, err.Error())
}

func (h *IntegrationHandler) GetKeys(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	statuses, err := h.integrationService.GetKeyStatuses(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, statuses)
}

type setKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (h *IntegrationHandler) SetKey(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	vars := mux.Vars(r)
	provider := integration.Provider(vars["provider"])

	var req setKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.integrationService.SetAPIKey(ctx, clerkID, provider, req.APIKey); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "API key saved"})
}

func (h *IntegrationHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	vars := mux.Vars(r)
	provider := integration.Provider(vars["provider"])

	if err := h.integrationService.DeleteAPIKey(ctx, clerkID, provider); err != nil {
		if errors.Is(err, integration.ErrAPIKeyMissing) {
			respondWithError(w, http.StatusNotFound, "API key not configured")
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "API key removed"})
}

func (h *IntegrationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req services.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ReplicaID == "" {
		respondWithError(w, http.StatusBadRequest, "replica_id is required")
		return
	}

	conversation, err := h.tavusService.CreateConversation(ctx, clerkID, &req)
	if err != nil {
		respondVendorError(w, err)
		return
	}

	// Each companion conversation counts toward the AI chat XP counter.
	meta := conversation.ConversationID
	if err := h.statsService.LogActivity(ctx, clerkID, "ai_chat", &meta); err != nil {
		// The conversation is already created; don't fail the request.
		respondWithJSON(w, http.StatusCreated, conversation)
		return
	}

	respondWithJSON(w, http.StatusCreated, conversation)
}

func (h *IntegrationHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	vars := mux.Vars(r)
	conversationID := vars["conversationID"]

	if err := h.tavusService.EndConversation(ctx, clerkID, conversationID); err != nil {
		respondVendorError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Conversation ended"})
}

type notifyRequest struct {
	Message string `json:"message"`
}

func (h *IntegrationHandler) NotifyTelegram(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "message is required")
		return
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	if u.TelegramChatID == nil {
		respondWithError(w, http.StatusPreconditionFailed, "Telegram chat not linked")
		return
	}

	// Users who stored their own telegram key send through their bot; the
	// shared SafeMate bot covers everyone else.
	key, err := h.integrationService.GetAPIKey(ctx, clerkID, integration.ProviderTelegram)
	if err != nil && !errors.Is(err, integration.ErrAPIKeyMissing) {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if key != "" {
		err = h.telegramService.SendMessageAs(ctx, key, *u.TelegramChatID, req.Message)
	} else {
		err = h.telegramService.SendMessage(ctx, *u.TelegramChatID, req.Message)
	}
	if err != nil {
		respondVendorError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Notification sent"})
}
