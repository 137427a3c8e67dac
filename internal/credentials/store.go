package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"llm-playground/internal/llm"
)

// Store saves and loads APIConfigs. API keys are obfuscated at rest.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		logger:  logger.Named("credentials"),
		now:     time.Now,
	}
}

// Save stamps LastUpdated and stores cfg under key. The returned config is
// what a later Load yields.
func (s *Store) Save(ctx context.Context, key string, cfg APIConfig) (APIConfig, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return APIConfig{}, ErrEmptyKey
	}
	if p, err := llm.ParseProvider(cfg.Provider.String()); err == nil {
		cfg.Provider = p
	}
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.LastUpdated = s.now().UnixMilli()

	stored := cfg
	stored.APIKey = Obfuscate(cfg.APIKey)

	data, err := json.Marshal(stored)
	if err != nil {
		return APIConfig{}, fmt.Errorf("credentials: encode config: %w", err)
	}
	if err := s.backend.Set(ctx, key, data); err != nil {
		return APIConfig{}, fmt.Errorf("credentials: save %q: %w", key, err)
	}
	return cfg, nil
}

// Load returns the config saved under key. A record that no longer decodes
// is reported as absent.
func (s *Store) Load(ctx context.Context, key string) (APIConfig, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return APIConfig{}, false, ErrEmptyKey
	}

	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return APIConfig{}, false, fmt.Errorf("credentials: load %q: %w", key, err)
	}
	if !ok {
		return APIConfig{}, false, nil
	}

	var cfg APIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.Warn("discarding unreadable config",
			zap.String("key", key),
			zap.Error(err),
		)
		return APIConfig{}, false, nil
	}
	cfg.APIKey = Deobfuscate(cfg.APIKey)
	return cfg, true, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("credentials: remove %q: %w", key, err)
	}
	return nil
}

// Clear removes every saved config.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}

// Close releases the backend if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
