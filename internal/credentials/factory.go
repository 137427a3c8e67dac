package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend    string
	TTL        time.Duration
	Prefix     string
	SQLitePath string
}

// NewBackend builds the configured backend wrapped with logging.
// redisClient is only used by the redis backend.
func NewBackend(cfg Config, redisClient *redis.Client) (Backend, error) {
	var inner Backend

	switch cfg.Backend {
	case BackendRedis:
		if redisClient == nil {
			return nil, errors.New("credentials: redis backend needs a client")
		}
		inner = NewRedisBackend(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
			TTL:    cfg.TTL,
		})
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("credentials: sqlite backend needs a path")
		}
		b, err := NewSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}
		inner = b
	case BackendMemory, "":
		inner = NewMemoryBackend(cfg.TTL)
	default:
		return nil, fmt.Errorf("credentials: unknown backend %q", cfg.Backend)
	}

	name := cfg.Backend
	if name == "" {
		name = BackendMemory
	}
	return NewLoggingBackend(inner, name), nil
}
