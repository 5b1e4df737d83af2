package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"DropFM/logger"
	"DropFM/model"
)

type processorSetting struct {
	Enabled bool   `json:"enabled"`
	Source  string `json:"source,omitempty"` // "setting" or "config"
}

// GetProcessorSettingHandler URL: GET /api/admin/settings/processor
func (h *APIHandler) GetProcessorSettingHandler(w http.ResponseWriter, r *http.Request) {
	enabled, ok, err := h.settings.GetBool(r.Context(), model.SettingProcessorEnabled)
	if err != nil {
		logger.Error("Failed to read processor setting", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to read setting")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, processorSetting{Enabled: h.cfg.ProcessorEnabled, Source: "config"})
		return
	}
	writeJSON(w, http.StatusOK, processorSetting{Enabled: enabled, Source: "setting"})
}

// PutProcessorSettingHandler URL: PUT /api/admin/settings/processor
func (h *APIHandler) PutProcessorSettingHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	if err := h.settings.Set(r.Context(), model.SettingProcessorEnabled, strconv.FormatBool(*req.Enabled)); err != nil {
		logger.Error("Failed to save processor setting", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to save setting")
		return
	}
	user, _ := UserFromContext(r.Context())
	logger.Info("Processor setting changed", logger.Bool("enabled", *req.Enabled), logger.String("by", user.Username))
	writeJSON(w, http.StatusOK, processorSetting{Enabled: *req.Enabled, Source: "setting"})
}
