package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"safeMateAPI/internal/integration"
	"time"
)

const tavusBaseURL = "https://tavusapi.com/v2"

// TavusService proxies AI companion conversations to the Tavus API using
// the user's own key. The key stays server-side; responses pass through
// with vendor errors mapped to short user-facing messages.
type TavusService struct {
	integrations *IntegrationService
	client       *http.Client
}

func NewTavusService(integrations *IntegrationService) *TavusService {
	return &TavusService{
		integrations: integrations,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type CreateConversationRequest struct {
	ReplicaID             string `json:"replica_id"`
	PersonaID             string `json:"persona_id,omitempty"`
	ConversationName      string `json:"conversation_name,omitempty"`
	ConversationalContext string `json:"conversational_context,omitempty"`
}

type ConversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
}

func (s *TavusService) CreateConversation(ctx context.Context, clerkID string, req *CreateConversationRequest) (*ConversationResponse, error) {
	apiKey, err := s.integrations.GetAPIKey(ctx, clerkID, integration.ProviderTavus)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tavusBaseURL+"/conversations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavus request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &integration.VendorError{Provider: integration.ProviderTavus, Status: resp.StatusCode}
	}

	var conversation ConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&conversation); err != nil {
		return nil, fmt.Errorf("failed to decode tavus response: %w", err)
	}

	return &conversation, nil
}

func (s *TavusService) EndConversation(ctx context.Context, clerkID string, conversationID string) error {
	apiKey, err := s.integrations.GetAPIKey(ctx, clerkID, integration.ProviderTavus)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/conversations/%s/end", tavusBaseURL, conversationID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("x-api-key", apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("tavus request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &integration.VendorError{Provider: integration.ProviderTavus, Status: resp.StatusCode}
	}

	return nil
}
