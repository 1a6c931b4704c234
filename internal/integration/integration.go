package integration

import (
	"errors"
	"fmt"
	"time"
)

// Provider identifies a third-party service a user can connect.
type Provider string

const (
	ProviderTavus    Provider = "tavus"
	ProviderTelegram Provider = "telegram"
)

func (p Provider) Valid() bool {
	return p == ProviderTavus || p == ProviderTelegram
}

// ErrAPIKeyMissing is a configuration error: surfaced before any external
// call is attempted.
var ErrAPIKeyMissing = errors.New("api key not configured")

type APIKey struct {
	Provider  Provider  `json:"provider" db:"provider"`
	Key       string    `json:"-" db:"api_key"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// VendorError maps a non-2xx vendor response to a short user-facing
// message. There is no retry, backoff, or circuit breaking.
type VendorError struct {
	Provider Provider
	Status   int
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message())
}

func (e *VendorError) Message() string {
	switch {
	case e.Status == 401 || e.Status == 403:
		return "invalid or expired API key"
	case e.Status == 404:
		return "requested resource not found"
	case e.Status == 429:
		return "rate limited, try again later"
	case e.Status >= 500:
		return "service temporarily unavailable"
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}
