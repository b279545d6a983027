package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"binwatch/internal/logger"
	"binwatch/internal/models"
)

const (
	historyLimit      = 200
	historyTimeLayout = "2006-01-02 15:04:05"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// indianStandardTime is used when the zone database has no entry for the configured zone
var indianStandardTime = time.FixedZone("IST", 5*60*60+30*60)

// PageHandler renders the dashboard and history pages
type PageHandler struct {
	service   BinService
	location  *time.Location
	threshold int
}

// PageConfig holds configuration for the page handler
type PageConfig struct {
	Service BinService
	// IANA zone used to display reading times
	Timezone  string
	Threshold int
}

// NewPageHandler creates a new page handler
func NewPageHandler(cfg PageConfig) *PageHandler {
	loc := indianStandardTime
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log := logger.WithComponent("handlers")
			log.Warn().
				Err(err).
				Str("timezone", cfg.Timezone).
				Msg("unknown display timezone, using IST")
		} else {
			loc = l
		}
	}

	return &PageHandler{
		service:   cfg.Service,
		location:  loc,
		threshold: cfg.Threshold,
	}
}

type dashboardBin struct {
	Name  models.BinName
	Title string
	Level int
	Full  bool
}

type dashboardPage struct {
	Bins      []dashboardBin
	Paused    bool
	Threshold int
}

type historyRow struct {
	Bin   models.BinName
	Level int
	Time  string
}

type historyPage struct {
	Readings []historyRow
	Zone     string
}

// Dashboard handles GET /
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Levels(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	paused, err := h.service.Paused(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page := dashboardPage{Paused: paused, Threshold: h.threshold}
	for _, name := range models.AllBins {
		level := levels[name]
		page.Bins = append(page.Bins, dashboardBin{
			Name:  name,
			Title: name.Title(),
			Level: level,
			Full:  h.threshold > 0 && level >= h.threshold,
		})
	}

	h.render(w, r, "index.html", page)
}

// History handles GET /history
func (h *PageHandler) History(w http.ResponseWriter, r *http.Request) {
	readings, err := h.service.History(r.Context(), historyLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page := historyPage{
		Readings: make([]historyRow, 0, len(readings)),
		Zone:     h.location.String(),
	}
	for _, rd := range readings {
		page.Readings = append(page.Readings, historyRow{
			Bin:   rd.Bin,
			Level: rd.Level,
			Time:  rd.Timestamp.In(h.location).Format(historyTimeLayout),
		})
	}

	h.render(w, r, "history.html", page)
}

// render executes into a buffer first so a template error still yields a clean 500
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
	log.Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg("page render failed")
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
