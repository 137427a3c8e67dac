package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	UpstreamTimeout time.Duration // non-streaming per-request timeout (default: 30s)
	StreamTimeout   time.Duration // lifetime bound of one stream (default: 5m)
	MaxRetries      int           // retry attempts (default: 2, negative disables)
	BaseBackoff     time.Duration // initial backoff (default: 100ms)

	// MaxResponseBytes caps bodies read into memory (default: 10 MiB).
	MaxResponseBytes int64

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: min(10, MaxIdleConns)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client

	// Now stamps stream chunks (default: time.Now).
	Now func() time.Time
}

const maxRetriesLimit = 10

// Validate rejects settings that defaults cannot repair.
func (c *Config) Validate() error {
	if c.MaxRetries > maxRetriesLimit {
		return fmt.Errorf("MaxRetries must be at most %d", maxRetriesLimit)
	}
	if c.MaxIdleConnsPerHost > c.MaxIdleConns {
		return errors.New("MaxIdleConnsPerHost cannot exceed MaxIdleConns")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Minute
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 2
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 10 << 20
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = min(10, cfg.MaxIdleConns)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}

type client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a playground client. Endpoint and key are per request,
// so one client serves every provider and user.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("llmclient"),
	}, nil
}

// defaultTransport creates a production-ready HTTP transport
// with connection pooling and reasonable timeouts.
// No overall client timeout: streams are bounded by context instead.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.UpstreamTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases resources held by the client.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
