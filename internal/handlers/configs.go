package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"llm-playground/internal/credentials"
	"llm-playground/pkg/logging"
)

// ConfigsHandler serves the saved-endpoint CRUD under /v1/configs.
type ConfigsHandler struct {
	Store *credentials.Store
}

func NewConfigsHandler(store *credentials.Store) *ConfigsHandler {
	return &ConfigsHandler{Store: store}
}

// Put handles PUT /v1/configs/{key}.
func (h *ConfigsHandler) Put(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())
	key := chi.URLParam(r, "key")

	var cfg credentials.APIConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.Store.Save(r.Context(), key, cfg)
	if err != nil {
		logger.Error("config_save_error", zap.String("config_key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save config")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Get handles GET /v1/configs/{key}.
func (h *ConfigsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	cfg, ok, err := h.Store.Load(r.Context(), key)
	if err != nil {
		logging.L(r.Context()).Error("config_load_error", zap.String("config_key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Delete handles DELETE /v1/configs/{key}.
func (h *ConfigsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.Store.Remove(r.Context(), key); err != nil {
		logging.L(r.Context()).Error("config_remove_error", zap.String("config_key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to remove config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /v1/configs.
func (h *ConfigsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Clear(r.Context()); err != nil {
		logging.L(r.Context()).Error("config_clear_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear configs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
