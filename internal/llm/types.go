package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider selects the wire dialect used for one request.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderGemini Provider = "gemini"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderOpenAI, ProviderClaude, ProviderGemini}

// ParseProvider maps a case-insensitive name to a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := adapters[p]; !ok {
		return "", fmt.Errorf("unknown provider %q (want one of: %s)", s, providerNames())
	}
	return p, nil
}

func (p Provider) String() string { return string(p) }

func providerNames() string {
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = p.String()
	}
	return strings.Join(names, ", ")
}

// Request is one playground call.
// Payload is the provider-shaped JSON body supplied by the caller.
type Request struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Payload  json.RawMessage
	Stream   bool
}

// Validate checks the fields the transport relies on.
func (r *Request) Validate() error {
	if _, ok := adapters[r.Provider]; !ok {
		return fmt.Errorf("unknown provider %q", r.Provider)
	}
	if strings.TrimSpace(r.BaseURL) == "" {
		return errors.New("base URL is required")
	}
	if r.APIKey == "" {
		return errors.New("API key is required")
	}
	if len(r.Payload) > 0 && !isJSONObject(r.Payload) {
		return errors.New("payload must be a JSON object")
	}
	return nil
}

// APIResponse is the terminal result of a non-streaming call, and of any
// call that failed before a stream could be opened.
type APIResponse struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
}

// StreamChunk is one text delta. Index counts from 0 without gaps.
type StreamChunk struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	Index     int    `json:"index"`
}

// Result holds exactly one of Response or Stream.
type Result struct {
	Response *APIResponse
	Stream   *Stream
}

// Client issues playground calls. Call never returns an error: every
// failure is reported as an unsuccessful APIResponse.
type Client interface {
	Call(ctx context.Context, req *Request) Result
}

func failure(msg string, status int) *APIResponse {
	if msg == "" {
		msg = "request failed"
	}
	return &APIResponse{Success: false, Error: msg, StatusCode: status}
}
