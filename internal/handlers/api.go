package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"binwatch/internal/alerts"
	"binwatch/internal/logger"
	"binwatch/internal/models"
	"binwatch/internal/notifier"
)

const (
	defaultReadingsLimit = 100
	defaultActionsLimit  = 50
	defaultMaxBodySize   = 1 << 20
)

// BinService is what the API needs from the alert engine
type BinService interface {
	UpdateLevel(ctx context.Context, name string, level int) (*alerts.UpdateResult, error)
	TriggerAlert(ctx context.Context, name string) (notifier.Result, error)
	Levels(ctx context.Context) (map[models.BinName]int, error)
	Readings(ctx context.Context, name string, n int) ([]models.Reading, error)
	History(ctx context.Context, n int) ([]models.Reading, error)
	Actions(ctx context.Context, n int) ([]models.ActionLogEntry, error)
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}

// APIHandler serves the JSON API
type APIHandler struct {
	service BinService

	// Max body size (default 1MB)
	maxBodySize int64
}

// APIConfig holds configuration for the API handler
type APIConfig struct {
	Service     BinService
	MaxBodySize int64
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(cfg APIConfig) *APIHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = defaultMaxBodySize
	}

	return &APIHandler{
		service:     cfg.Service,
		maxBodySize: maxBodySize,
	}
}

// UpdateLevelResponse is returned by POST /update_level/{bin}
type UpdateLevelResponse struct {
	Status    string `json:"status"`
	Bin       string `json:"bin"`
	Level     int    `json:"level"`
	AlertSent bool   `json:"alert_sent"`
}

// ReadingResponse is one element of GET /readings/{bin}
type ReadingResponse struct {
	Level     int       `json:"level"`
	Timestamp time.Time `json:"ts"`
}

// ConfigResponse is returned by GET /config
type ConfigResponse struct {
	SimulatorPaused bool `json:"simulator_paused"`
}

// PatchConfigResponse is returned by PATCH /config
type PatchConfigResponse struct {
	Status          string   `json:"status"`
	SimulatorPaused bool     `json:"simulator_paused"`
	Changed         []string `json:"changed"`
}

// ActionResponse is one element of GET /actions
type ActionResponse struct {
	Action    models.ActionType `json:"action"`
	Detail    string            `json:"detail"`
	Timestamp time.Time         `json:"ts"`
}

// TriggerAlertResponse is returned by POST /trigger_alert/{bin}
type TriggerAlertResponse struct {
	Status string `json:"status"`
	SID    string `json:"sid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Levels handles GET /levels
func (h *APIHandler) Levels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Levels(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

// UpdateLevel handles POST /update_level/{bin}. The body is parsed leniently:
// anything that is not a JSON object counts as an empty payload.
func (h *APIHandler) UpdateLevel(w http.ResponseWriter, r *http.Request) {
	bin := chi.URLParam(r, "bin")
	if _, err := models.ParseBinName(bin); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := h.decodeObject(w, r)
	level := models.LevelFromPayload(payload)

	res, err := h.service.UpdateLevel(r.Context(), bin, level)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateLevelResponse{
		Status:    "success",
		Bin:       string(res.Bin),
		Level:     res.Level,
		AlertSent: res.AlertSent,
	})
}

// Readings handles GET /readings/{bin}?n=
func (h *APIHandler) Readings(w http.ResponseWriter, r *http.Request) {
	bin := chi.URLParam(r, "bin")
	n := queryLimit(r, defaultReadingsLimit)

	readings, err := h.service.Readings(r.Context(), bin, n)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]ReadingResponse, 0, len(readings))
	for _, rd := range readings {
		out = append(out, ReadingResponse{Level: rd.Level, Timestamp: rd.Timestamp})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetConfig handles GET /config
func (h *APIHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	paused, err := h.service.Paused(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{SimulatorPaused: paused})
}

// PatchConfig handles PATCH /config. Only simulator_paused is recognised;
// other keys are ignored.
func (h *APIHandler) PatchConfig(w http.ResponseWriter, r *http.Request) {
	payload := h.decodeObject(w, r)
	changed := make([]string, 0, 1)

	if raw, ok := payload[models.SettingSimulatorPaused]; ok {
		paused := models.Truthy(raw)
		if err := h.service.SetPaused(r.Context(), paused); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		changed = append(changed, models.SettingSimulatorPaused+"="+models.FormatBool(paused))
	}

	paused, err := h.service.Paused(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PatchConfigResponse{
		Status:          "ok",
		SimulatorPaused: paused,
		Changed:         changed,
	})
}

// Actions handles GET /actions?n=
func (h *APIHandler) Actions(w http.ResponseWriter, r *http.Request) {
	n := queryLimit(r, defaultActionsLimit)

	entries, err := h.service.Actions(r.Context(), n)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]ActionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActionResponse{Action: e.Action, Detail: e.Detail, Timestamp: e.Timestamp})
	}
	writeJSON(w, http.StatusOK, out)
}

// TriggerAlert handles POST /trigger_alert/{bin}
func (h *APIHandler) TriggerAlert(w http.ResponseWriter, r *http.Request) {
	bin := chi.URLParam(r, "bin")

	res, err := h.service.TriggerAlert(r.Context(), bin)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if !res.Sent {
		writeJSON(w, http.StatusInternalServerError, TriggerAlertResponse{Status: "alert_failed", Error: res.Error})
		return
	}
	writeJSON(w, http.StatusOK, TriggerAlertResponse{Status: "alert_sent", SID: res.SID})
}

// decodeObject reads the body as a JSON object. Bad or missing bodies decode
// to an empty map.
func (h *APIHandler) decodeObject(w http.ResponseWriter, r *http.Request) map[string]interface{} {
	payload := map[string]interface{}{}
	if r.Body == nil {
		return payload
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil || len(body) == 0 {
		return payload
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
		log.Debug().
			Err(err).
			Msg("ignoring malformed body")
		return map[string]interface{}{}
	}
	return payload
}

// writeServiceError maps engine errors onto status codes
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidBin):
		writeError(w, http.StatusBadRequest, models.ErrInvalidBin.Error())
	case errors.Is(err, models.ErrBinNotFound):
		writeError(w, http.StatusNotFound, models.ErrBinNotFound.Error())
	default:
		log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
		log.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryLimit parses ?n=, falling back to def when missing or malformed
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
