package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llm-playground/internal/llm"
)

// ErrEmptyKey is returned for operations addressed to a blank storage key.
var ErrEmptyKey = errors.New("credentials: storage key is empty")

// APIConfig is one saved endpoint. LastUpdated is epoch milliseconds and
// is set by Store.Save.
type APIConfig struct {
	BaseURL     string       `json:"baseUrl"`
	APIKey      string       `json:"apiKey"`
	Provider    llm.Provider `json:"provider"`
	LastUpdated int64        `json:"lastUpdated,omitempty"`
}

// Validate checks a config before it is saved.
func (c APIConfig) Validate() error {
	if _, err := llm.ParseProvider(c.Provider.String()); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("credentials: baseUrl is required")
	}
	return nil
}

// Backend persists serialized configs by key.
// Implemented by the memory (dev), Redis and SQLite backends.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
