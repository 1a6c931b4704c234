package services

import (
	"context"
	"errors"
	"fmt"
	"safeMateAPI/internal/integration"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IntegrationService stores per-user API keys for the third-party proxies.
// Keys never leave the server; clients only learn whether one is set.
type IntegrationService struct {
	db *pgxpool.Pool
}

func NewIntegrationService(db *pgxpool.Pool) *IntegrationService {
	return &IntegrationService{db: db}
}

func (s *IntegrationService) GetAPIKey(ctx context.Context, clerkID string, provider integration.Provider) (string, error) {
	if !provider.Valid() {
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	query := `
	SELECT ak.api_key
	FROM api_keys ak
	JOIN users u ON u.id = ak.user_id
	WHERE u.clerk_id = $1 AND ak.provider = $2
	`

	var key string
	err := s.db.QueryRow(ctx, query, clerkID, provider).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", integration.ErrAPIKeyMissing
		}
		return "", fmt.Errorf("failed to get api key: %w", err)
	}

	return key, nil
}

func (s *IntegrationService) SetAPIKey(ctx context.Context, clerkID string, provider integration.Provider, key string) error {
	if !provider.Valid() {
		return fmt.Errorf("unknown provider: %s", provider)
	}
	if key == "" {
		return fmt.Errorf("api key cannot be empty")
	}

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	query := `
	INSERT INTO api_keys (id, user_id, provider, api_key, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NOW(), NOW())
	ON CONFLICT (user_id, provider)
	DO UPDATE SET api_key = $4, updated_at = NOW()
	`

	_, err = s.db.Exec(ctx, query, uuid.New(), userID, provider, key)
	if err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}

	return nil
}

func (s *IntegrationService) DeleteAPIKey(ctx context.Context, clerkID string, provider integration.Provider) error {
	if !provider.Valid() {
		return fmt.Errorf("unknown provider: %s", provider)
	}

	query := `
	DELETE FROM api_keys ak
	USING users u
	WHERE ak.user_id = u.id AND u.clerk_id = $1 AND ak.provider = $2
	`

	result, err := s.db.Exec(ctx, query, clerkID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return integration.ErrAPIKeyMissing
	}

	return nil
}

type KeyStatus struct {
	Provider integration.Provider `json:"provider"`
	HasKey   bool                 `json:"has_key"`
}

func (s *IntegrationService) GetKeyStatuses(ctx context.Context, clerkID string) ([]KeyStatus, error) {
	query := `
	SELECT ak.provider
	FROM api_keys ak
	JOIN users u ON u.id = ak.user_id
	WHERE u.clerk_id = $1
	`

	rows, err := s.db.Query(ctx, query, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key statuses: %w", err)
	}
	defer rows.Close()

	configured := make(map[integration.Provider]bool)
	for rows.Next() {
		var p integration.Provider
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		configured[p] = true
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	statuses := []KeyStatus{
		{Provider: integration.ProviderTavus, HasKey: configured[integration.ProviderTavus]},
		{Provider: integration.ProviderTelegram, HasKey: configured[integration.ProviderTelegram]},
	}
	return statuses, nil
}
