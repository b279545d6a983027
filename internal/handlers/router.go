package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"binwatch/internal/middleware"
)

// RouterConfig collects everything the router mounts
type RouterConfig struct {
	API   *APIHandler
	Pages *PageHandler
	// Operational endpoints, mounted when set
	Health  http.Handler
	Stats   http.Handler
	Metrics http.Handler
}

// NewRouter builds the service router
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Stack)

	if cfg.Pages != nil {
		r.Get("/", cfg.Pages.Dashboard)
		r.Get("/history", cfg.Pages.History)
	}

	api := cfg.API
	r.Get("/levels", api.Levels)
	r.Post("/update_level/{bin}", api.UpdateLevel)
	r.Get("/readings/{bin}", api.Readings)
	r.Get("/config", api.GetConfig)
	r.Patch("/config", api.PatchConfig)
	r.Get("/actions", api.Actions)
	r.Post("/trigger_alert/{bin}", api.TriggerAlert)

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/health", cfg.Health)
	}
	if cfg.Stats != nil {
		r.Method(http.MethodGet, "/stats", cfg.Stats)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
