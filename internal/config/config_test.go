package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads; empty counts as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, "PORT", "CORS_ORIGINS", "ENV", "LOG_LEVEL",
		"STORE_BACKEND", "STORE_PREFIX", "STORE_TTL", "SQLITE_PATH",
		"REDIS_ADDR", "REDIS_PASSWORD",
		"UPSTREAM_TIMEOUT", "STREAM_TIMEOUT", "UPSTREAM_MAX_RETRIES",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playground.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Store.Backend != "memory" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Upstream.StreamTimeout != 5*time.Minute {
		t.Fatalf("unexpected stream timeout %s", cfg.Upstream.StreamTimeout)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: "9090"
  cors_origins: ["https://docs.example.com"]
store:
  backend: sqlite
  sqlite_path: /tmp/configs.db
  ttl: 10m
upstream:
  timeout: 45s
  max_retries: 0
`)
	t.Setenv("PORT", "7070")
	t.Setenv("STREAM_TIMEOUT", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env to override port, got %s", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://docs.example.com" {
		t.Fatalf("unexpected origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.TTL != 10*time.Minute {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
	if cfg.Upstream.Timeout != 45*time.Second || cfg.Upstream.StreamTimeout != 2*time.Minute {
		t.Fatalf("unexpected upstream %+v", cfg.Upstream)
	}
	if cfg.Server.MaxBodyBytes != 512*1024 {
		t.Fatalf("expected untouched defaults to survive, got %d", cfg.Server.MaxBodyBytes)
	}

	if got := cfg.LLM().MaxRetries; got != -1 {
		t.Fatalf("expected max_retries 0 to disable retries, got %d", got)
	}
	if got := cfg.Credentials(); got.Backend != "sqlite" || got.SQLitePath != "/tmp/configs.db" {
		t.Fatalf("unexpected credentials config %+v", got)
	}
}

func TestLoadPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "log:\n  level: debug\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected level from file, got %s", cfg.Log.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "server: [")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(writeFile(t, "store:\n  backend: etcd\n")); err == nil || !strings.Contains(err.Error(), "etcd") {
		t.Fatalf("expected backend validation error, got %v", err)
	}

	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList(" a, ,b ,c")
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("unexpected split %v", got)
	}
}
