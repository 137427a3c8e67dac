package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llm-playground/internal/credentials"
	"llm-playground/internal/llm"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "PLAYGROUND_CONFIG"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // non-streaming routes
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Env   string `yaml:"env"`   // dev | prod
	Level string `yaml:"level"` // debug | info | warn | error
}

type StoreConfig struct {
	Backend    string        `yaml:"backend"` // memory | redis | sqlite
	TTL        time.Duration `yaml:"ttl"`
	Prefix     string        `yaml:"prefix"`
	SQLitePath string        `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type UpstreamConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			CORSOrigins:    []string{"http://localhost:5173"},
			RequestTimeout: 15 * time.Second,
			MaxBodyBytes:   512 * 1024,
		},
		Log: LogConfig{
			Env:   "prod",
			Level: "info",
		},
		Store: StoreConfig{
			Backend:    credentials.BackendMemory,
			Prefix:     credentials.DefaultRedisPrefix,
			SQLitePath: "data/playground.db",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Upstream: UpstreamConfig{
			Timeout:       30 * time.Second,
			StreamTimeout: 5 * time.Minute,
			MaxRetries:    2,
			BaseBackoff:   100 * time.Millisecond,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $PLAYGROUND_CONFIG), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getenv("PORT", c.Server.Port)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Log.Env = getenv("ENV", c.Log.Env)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)

	c.Store.Backend = getenv("STORE_BACKEND", c.Store.Backend)
	c.Store.Prefix = getenv("STORE_PREFIX", c.Store.Prefix)
	c.Store.SQLitePath = getenv("SQLITE_PATH", c.Store.SQLitePath)

	c.Redis.Addr = getenv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenv("REDIS_PASSWORD", c.Redis.Password)

	var err error
	if c.Store.TTL, err = getenvDuration("STORE_TTL", c.Store.TTL); err != nil {
		return err
	}
	if c.Upstream.Timeout, err = getenvDuration("UPSTREAM_TIMEOUT", c.Upstream.Timeout); err != nil {
		return err
	}
	if c.Upstream.StreamTimeout, err = getenvDuration("STREAM_TIMEOUT", c.Upstream.StreamTimeout); err != nil {
		return err
	}
	if v := os.Getenv("UPSTREAM_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: UPSTREAM_MAX_RETRIES: %w", err)
		}
		c.Upstream.MaxRetries = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Store.Backend {
	case credentials.BackendMemory, credentials.BackendRedis, credentials.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, redis, sqlite", c.Store.Backend))
	}
	if c.Store.Backend == credentials.BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis backend"))
	}
	if c.Store.Backend == credentials.BackendSQLite && c.Store.SQLitePath == "" {
		errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// LLM maps the upstream section onto the client config.
func (c *Config) LLM() llm.Config {
	retries := c.Upstream.MaxRetries
	if retries == 0 {
		retries = -1 // 0 in the file means no retries
	}
	return llm.Config{
		UpstreamTimeout: c.Upstream.Timeout,
		StreamTimeout:   c.Upstream.StreamTimeout,
		MaxRetries:      retries,
		BaseBackoff:     c.Upstream.BaseBackoff,
	}
}

// Credentials maps the store section onto the backend factory config.
func (c *Config) Credentials() credentials.Config {
	return credentials.Config{
		Backend:    c.Store.Backend,
		TTL:        c.Store.TTL,
		Prefix:     c.Store.Prefix,
		SQLitePath: c.Store.SQLitePath,
	}
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
