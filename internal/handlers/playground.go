package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"llm-playground/internal/credentials"
	"llm-playground/internal/llm"
	"llm-playground/pkg/logging"
)

// PlaygroundHandler holds dependencies for POST /v1/playground/{provider}.
type PlaygroundHandler struct {
	Client llm.Client
	Store  *credentials.Store // optional; resolves configKey
}

func NewPlaygroundHandler(client llm.Client, store *credentials.Store) *PlaygroundHandler {
	return &PlaygroundHandler{
		Client: client,
		Store:  store,
	}
}

// playgroundRequest is the body of a playground call. When baseUrl or
// apiKey is empty, configKey names a saved config that supplies them.
type playgroundRequest struct {
	BaseURL   string          `json:"baseUrl"`
	APIKey    string          `json:"apiKey"`
	ConfigKey string          `json:"configKey,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Stream    bool            `json:"stream"`
}

// Call handles POST /v1/playground/{provider}. Non-streaming calls and
// failed stream setups answer with an APIResponse; streams are relayed as
// server-sent events ending in "data: [DONE]".
func (h *PlaygroundHandler) Call(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	provider, err := llm.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &llm.APIResponse{Error: err.Error()})
		return
	}

	var body playgroundRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, &llm.APIResponse{Error: "invalid JSON body"})
		return
	}

	req := &llm.Request{
		Provider: provider,
		BaseURL:  body.BaseURL,
		APIKey:   body.APIKey,
		Payload:  body.Payload,
		Stream:   body.Stream,
	}
	if status, msg := h.resolveConfig(r, body.ConfigKey, req); status != 0 {
		writeJSON(w, status, &llm.APIResponse{Error: msg})
		return
	}

	start := time.Now()
	res := h.Client.Call(ctx, req)
	if res.Stream == nil {
		logger.Info("playground_call",
			zap.String("provider", provider.String()),
			zap.Bool("stream", req.Stream),
			zap.Bool("success", res.Response.Success),
			zap.Int("upstream_status", res.Response.StatusCode),
			zap.Duration("total_latency_ms", time.Since(start)),
		)
		writeJSON(w, http.StatusOK, res.Response)
		return
	}

	h.relay(w, r, res.Stream, start)
}

// resolveConfig fills missing endpoint fields from the store. A non-zero
// status means the request cannot proceed.
func (h *PlaygroundHandler) resolveConfig(r *http.Request, key string, req *llm.Request) (int, string) {
	if key == "" || (req.BaseURL != "" && req.APIKey != "") {
		return 0, ""
	}
	if h.Store == nil {
		return http.StatusBadRequest, "configKey given but no credential store is configured"
	}

	cfg, ok, err := h.Store.Load(r.Context(), key)
	if err != nil {
		logging.L(r.Context()).Error("config_load_error", zap.String("config_key", key), zap.Error(err))
		return http.StatusInternalServerError, "failed to load saved config"
	}
	if !ok {
		return http.StatusNotFound, fmt.Sprintf("no saved config %q", key)
	}
	if cfg.Provider != req.Provider {
		return http.StatusBadRequest, fmt.Sprintf("saved config %q is for provider %s", key, cfg.Provider)
	}

	if req.BaseURL == "" {
		req.BaseURL = cfg.BaseURL
	}
	if req.APIKey == "" {
		req.APIKey = cfg.APIKey
	}
	return 0, ""
}

func (h *PlaygroundHandler) relay(w http.ResponseWriter, r *http.Request, stream *llm.Stream, start time.Time) {
	streamID := uuid.NewString()
	logger := logging.L(r.Context()).With(
		zap.String("provider", stream.Provider().String()),
		zap.String("stream_id", streamID),
	)

	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Stream-ID", streamID)
	w.WriteHeader(http.StatusOK)

	chunks := 0
	clientGone := false
	for chunk := range stream.Chunks() {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			clientGone = true
			break
		}
		_ = rc.Flush()
		chunks++
	}

	if clientGone {
		logger.Info("stream_client_disconnected", zap.Int("chunks", chunks))
		return
	}

	if err := stream.Err(); err != nil {
		logger.Warn("stream_error", zap.Int("chunks", chunks), zap.Error(err))
		data, _ := json.Marshal(errorResponse{Error: err.Error()})
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	_ = rc.Flush()

	logger.Info("stream_relayed",
		zap.Int("chunks", chunks),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
}
