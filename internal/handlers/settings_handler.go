package handlers

import (
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/services/settings"
)

// SettingsHandler reads and updates runtime settings
type SettingsHandler struct {
	settings *settings.Service
	logger   arbor.ILogger
}

func NewSettingsHandler(settings *settings.Service, logger arbor.ILogger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// ListHandler handles GET /api/settings
func (h *SettingsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.settings.All(r.Context()))
}

func (h *SettingsHandler) keyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(PathParam(r.URL.Path, "/api/settings/"))
	if err != nil || key == "" {
		WriteError(w, http.StatusBadRequest, "Missing or invalid key")
		return "", false
	}
	if !settings.IsKnown(key) {
		WriteError(w, http.StatusNotFound, "Unknown setting")
		return "", false
	}
	return key, true
}

// GetHandler handles GET /api/settings/{key}
func (h *SettingsHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": h.settings.Get(r.Context(), key),
	})
}

type settingRequest struct {
	Value string `json:"value"`
}

// UpdateHandler handles PUT /api/settings/{key}
func (h *SettingsHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	var req settingRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to store setting")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": req.Value,
	})
}
