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

var telegramBaseURL = "https://api.telegram.org"

// TelegramService sends alert messages over the Telegram bot API. Users
// who stored their own bot key send through it; everyone else goes through
// the shared SafeMate bot configured in the environment.
type TelegramService struct {
	botToken string
	client   *http.Client
}

func NewTelegramService(botToken string) *TelegramService {
	return &TelegramService{
		botToken: botToken,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type telegramSendRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessage sends through the shared SafeMate bot.
func (s *TelegramService) SendMessage(ctx context.Context, chatID int64, text string) error {
	return s.SendMessageAs(ctx, s.botToken, chatID, text)
}

// SendMessageAs sends through the given bot token, used when the user has
// stored their own Telegram key.
func (s *TelegramService) SendMessageAs(ctx context.Context, botToken string, chatID int64, text string) error {
	if botToken == "" {
		return integration.ErrAPIKeyMissing
	}

	body, err := json.Marshal(telegramSendRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramBaseURL, botToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &integration.VendorError{Provider: integration.ProviderTelegram, Status: resp.StatusCode}
	}

	return nil
}
