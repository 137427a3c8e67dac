package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, cfg Config) Client {
	t.Helper()
	c, err := NewClient(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{MaxRetries: 11}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error for MaxRetries, got nil")
	}
	if _, err := NewClient(Config{MaxIdleConns: 2, MaxIdleConnsPerHost: 5}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error for pool sizes, got nil")
	}
	if _, err := NewClient(Config{MaxIdleConns: 5}, nil); err != nil {
		t.Fatalf("per-host default must follow a small MaxIdleConns, got %v", err)
	}
	if got := (&Config{MaxIdleConns: 5}).WithDefaults().MaxIdleConnsPerHost; got != 5 {
		t.Fatalf("expected per-host default 5, got %d", got)
	}
	if _, err := NewClient(Config{}, nil); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
}

func TestCallOpenAIComplete(t *testing.T) {
	t.Parallel()

	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	res := c.Call(context.Background(), &Request{
		Provider: ProviderOpenAI,
		BaseURL:  srv.URL + "/",
		APIKey:   "sk-test",
		Payload:  json.RawMessage(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`),
	})

	if res.Stream != nil {
		t.Fatalf("expected a response, got a stream")
	}
	if !res.Response.Success {
		t.Fatalf("expected success, got %+v", res.Response)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
	if v := gjson.Get(gotBody, "stream"); v.Type != gjson.False {
		t.Fatalf("expected stream=false in body, got %s", gotBody)
	}
	if gjson.Get(gotBody, "model").String() != "gpt-4o" {
		t.Fatalf("expected payload fields to be forwarded, got %s", gotBody)
	}
	if gjson.GetBytes(res.Response.Data, "choices.0.message.content").String() != "hi" {
		t.Fatalf("expected upstream JSON passed through, got %s", res.Response.Data)
	}
}

func TestCallOpenAIStream(t *testing.T) {
	t.Parallel()

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hello", ", ", "world"} {
			_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"`+part+`"}}]}`+"\n\n")
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	res := c.Call(context.Background(), &Request{
		Provider: ProviderOpenAI,
		BaseURL:  srv.URL,
		APIKey:   "sk-test",
		Payload:  json.RawMessage(`{"model":"gpt-4o","messages":[]}`),
		Stream:   true,
	})
	if res.Stream == nil {
		t.Fatalf("expected a stream, got %+v", res.Response)
	}
	if res.Stream.Provider() != ProviderOpenAI {
		t.Fatalf("unexpected provider %s", res.Stream.Provider())
	}

	var indexes []int
	var sb strings.Builder
	for chunk := range res.Stream.Chunks() {
		indexes = append(indexes, chunk.Index)
		sb.WriteString(chunk.Content)
	}
	if err := res.Stream.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if sb.String() != "Hello, world" {
		t.Fatalf("unexpected text %q", sb.String())
	}
	if len(indexes) != 3 || indexes[0] != 0 || indexes[2] != 2 {
		t.Fatalf("unexpected indexes %v", indexes)
	}
	if v := gjson.Get(gotBody, "stream"); v.Type != gjson.True {
		t.Fatalf("expected stream=true in body, got %s", gotBody)
	}
}

func TestCallClaudeHeadersAndStream(t *testing.T) {
	t.Parallel()

	var gotKey, gotVersion, gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, strings.Join([]string{
			"event: message_start",
			`data: {"type":"message_start","message":{"id":"msg_1"}}`,
			"",
			"event: content_block_delta",
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Bonjour"}}`,
			"",
			"event: message_stop",
			`data: {"type":"message_stop"}`,
			"",
		}, "\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	res := c.Call(context.Background(), &Request{
		Provider: ProviderClaude,
		BaseURL:  srv.URL,
		APIKey:   "sk-ant",
		Payload:  json.RawMessage(`{"model":"claude-sonnet-4-5","max_tokens":64,"messages":[]}`),
		Stream:   true,
	})
	if res.Stream == nil {
		t.Fatalf("expected a stream, got %+v", res.Response)
	}
	text, err := res.Stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if text != "Bonjour" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotKey != "sk-ant" || gotVersion != ClaudeAPIVersion {
		t.Fatalf("unexpected headers key=%q version=%q", gotKey, gotVersion)
	}
	if gotAuth != "" {
		t.Fatalf("Claude requests must not carry Authorization, got %q", gotAuth)
	}
}

func TestCallGeminiURLAndBody(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	res := c.Call(context.Background(), &Request{
		Provider: ProviderGemini,
		BaseURL:  srv.URL,
		APIKey:   "g key&1",
		Payload:  json.RawMessage(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}],"temperature":0.2,"stream":true}`),
	})
	if !res.Response.Success {
		t.Fatalf("expected success, got %+v", res.Response)
	}

	if gotPath != "/v1/models/"+DefaultGeminiModel+":generateContent" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotKey != "g key&1" {
		t.Fatalf("unexpected key %q", gotKey)
	}
	if !gjson.Get(gotBody, "contents").Exists() {
		t.Fatalf("expected contents forwarded, got %s", gotBody)
	}
	for _, field := range []string{"temperature", "stream", "generationConfig", "model"} {
		if gjson.Get(gotBody, field).Exists() {
			t.Fatalf("unexpected field %q in body %s", field, gotBody)
		}
	}
}

func TestCallGeminiStreamUsesModel(t *testing.T) {
	t.Parallel()

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, `[{"candidates":[{"content":{"parts":[{"text":"A"}]}}]}`)
		flusher.Flush()
		_, _ = io.WriteString(w, "\n,\r\n"+`{"candidates":[{"content":{"parts":[{"text":"B"}]}}]}`+"\n]")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	res := c.Call(context.Background(), &Request{
		Provider: ProviderGemini,
		BaseURL:  srv.URL,
		APIKey:   "k",
		Payload:  json.RawMessage(`{"model":"gemini-2.0-pro","contents":[],"generationConfig":{"temperature":0.5}}`),
		Stream:   true,
	})
	if res.Stream == nil {
		t.Fatalf("expected a stream, got %+v", res.Response)
	}
	text, err := res.Stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if text != "AB" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotPath != "/v1/models/gemini-2.0-pro:streamGenerateContent" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gjson.Get(gotBody, "generationConfig.temperature").Float() != 0.5 {
		t.Fatalf("expected generationConfig forwarded, got %s", gotBody)
	}
}

func TestCallUpstreamErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	for _, stream := range []bool{false, true} {
		res := c.Call(context.Background(), &Request{
			Provider: ProviderOpenAI,
			BaseURL:  srv.URL,
			APIKey:   "bad",
			Stream:   stream,
		})
		if res.Stream != nil {
			t.Fatalf("stream=%v: expected a failure response, got a stream", stream)
		}
		r := res.Response
		if r.Success || r.StatusCode != http.StatusUnauthorized {
			t.Fatalf("stream=%v: unexpected response %+v", stream, r)
		}
		if !strings.Contains(r.Error, "Incorrect API key") {
			t.Fatalf("stream=%v: expected upstream body as error, got %q", stream, r.Error)
		}
	}
}

func TestCallEmptyErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: -1})
	res := c.Call(context.Background(), &Request{Provider: ProviderClaude, BaseURL: srv.URL, APIKey: "k"})

	if res.Response.Error != "HTTP 502" || res.Response.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected response %+v", res.Response)
	}
}

func TestCallRetriesThenReturnsFinalStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "overloaded")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 2, BaseBackoff: time.Millisecond})
	res := c.Call(context.Background(), &Request{Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})

	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if res.Response.StatusCode != http.StatusServiceUnavailable || res.Response.Error != "overloaded" {
		t.Fatalf("unexpected response %+v", res.Response)
	}
}

func TestCallRetryRecovers(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{BaseBackoff: time.Millisecond})
	res := c.Call(context.Background(), &Request{Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})

	if !res.Response.Success || hits.Load() != 2 {
		t.Fatalf("expected success on second attempt, got %+v after %d hits", res.Response, hits.Load())
	}
}

func TestCallRetryAfterBeyondDeadlineKeepsStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "rate limited")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{UpstreamTimeout: 300 * time.Millisecond, BaseBackoff: time.Millisecond})
	start := time.Now()
	res := c.Call(context.Background(), &Request{Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})

	if res.Response.StatusCode != http.StatusTooManyRequests || res.Response.Error != "rate limited" {
		t.Fatalf("expected the 429 to be surfaced, got %+v", res.Response)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry, got %d attempts", hits.Load())
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("expected an immediate answer, waited %s", elapsed)
	}
}

func TestRetryExhaustionReportsAttempts(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, Config{MaxRetries: 1, BaseBackoff: time.Millisecond}).(*client)
	var calls int
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	_, err := c.doWithRetry(context.Background(), nil, func(context.Context, []byte) (*http.Response, error) {
		calls++
		return nil, dialErr
	})

	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if err == nil || !strings.Contains(err.Error(), "after 2 attempts") || !errors.Is(err, dialErr) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{BaseBackoff: time.Millisecond})
	res := c.Call(context.Background(), &Request{Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})

	if hits.Load() != 1 || res.Response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected a single attempt with 400, got %d hits and %+v", hits.Load(), res.Response)
	}
}

func TestCallNetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(t, Config{MaxRetries: -1})
	res := c.Call(context.Background(), &Request{Provider: ProviderGemini, BaseURL: baseURL, APIKey: "secret-key"})

	if res.Response.Success || res.Response.StatusCode != 0 || res.Response.Error == "" {
		t.Fatalf("unexpected response %+v", res.Response)
	}
	if strings.Contains(res.Response.Error, "secret-key") {
		t.Fatalf("API key leaked into error: %q", res.Response.Error)
	}
}

func TestCallTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, Config{UpstreamTimeout: 50 * time.Millisecond, MaxRetries: -1})
	start := time.Now()
	res := c.Call(context.Background(), &Request{Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})

	if res.Response.Success || res.Response.StatusCode != 0 {
		t.Fatalf("expected a network failure, got %+v", res.Response)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestCallInvalidJSONResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>gateway</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	res := c.Call(context.Background(), &Request{Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})

	if res.Response.Success || !strings.Contains(res.Response.Error, "invalid JSON") {
		t.Fatalf("unexpected response %+v", res.Response)
	}
}

func TestCallRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	cases := map[string]*Request{
		"nil":              nil,
		"unknown provider": {Provider: "mistral", BaseURL: srv.URL, APIKey: "k"},
		"missing base URL": {Provider: ProviderOpenAI, APIKey: "k"},
		"missing key":      {Provider: ProviderOpenAI, BaseURL: srv.URL},
		"array payload":    {Provider: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k", Payload: json.RawMessage(`[1]`)},
	}
	for name, req := range cases {
		res := c.Call(context.Background(), req)
		if res.Stream != nil || res.Response == nil || res.Response.Success || res.Response.Error == "" {
			t.Fatalf("%s: expected failure response, got %+v", name, res)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("invalid requests must not reach upstream, got %d hits", hits.Load())
	}
}

func TestParseProvider(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"openai", "Claude", " GEMINI "} {
		if _, err := ParseProvider(in); err != nil {
			t.Fatalf("ParseProvider(%q): %v", in, err)
		}
	}
	_, err := ParseProvider("cohere")
	if err == nil || !strings.Contains(err.Error(), "openai, claude, gemini") {
		t.Fatalf("expected error listing supported providers, got %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	got := redactURL("https://generativelanguage.googleapis.com/v1/models/m:generateContent?key=abc123")
	if strings.Contains(got, "abc123") || !strings.Contains(got, "key=REDACTED") {
		t.Fatalf("key not redacted: %s", got)
	}
	if plain := "https://api.openai.com/v1/chat/completions"; redactURL(plain) != plain {
		t.Fatalf("URL without key must be unchanged")
	}
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	for attempt := range 30 {
		d := computeBackoff(100*time.Millisecond, attempt)
		if d < 0 || d > maxBackoff {
			t.Fatalf("attempt %d: backoff %s out of range", attempt, d)
		}
	}
}
