package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binwatch/internal/logger"
	"binwatch/internal/metrics"
	"binwatch/internal/models"
	"binwatch/internal/notifier"
	"binwatch/internal/storage"
)

const (
	DefaultThreshold = 80
	DefaultCooldown  = 60 * time.Second
)

// Rule decides when an automatic alert fires.
type Rule struct {
	// Alert at or above this level
	Threshold int
	// Minimum time between two automatic alerts of one bin
	Cooldown time.Duration
}

// ShouldAlert reports whether a reading qualifies for an automatic alert
func (r Rule) ShouldAlert(level int, lastAlert, now time.Time) bool {
	return level >= r.Threshold && now.Sub(lastAlert) >= r.Cooldown
}

// Store is the persistence the engine needs.
type Store interface {
	storage.BinRepository
	storage.ReadingRepository
	storage.ActionRecorder
}

// Config wires an Engine
type Config struct {
	Store    Store
	Settings storage.SettingsStore
	Notifier notifier.Notifier
	Rule     Rule
	// Optional sink for bin events; sends never block
	Events chan<- *models.BinEvent
	// Defaults to time.Now
	Now func() time.Time
}

// Engine ingests levels, keeps bin state and fires alerts.
type Engine struct {
	store    Store
	settings storage.SettingsStore
	notifier notifier.Notifier
	rule     Rule
	events   chan<- *models.BinEvent
	now      func() time.Time

	// one lock per bin serialises decide-send-update
	locks map[models.BinName]*sync.Mutex
}

// UpdateResult is the outcome of UpdateLevel
type UpdateResult struct {
	Bin       models.BinName
	Level     int
	AlertSent bool
}

// NewEngine creates an engine
func NewEngine(cfg Config) *Engine {
	rule := cfg.Rule
	if rule.Threshold <= 0 {
		rule.Threshold = DefaultThreshold
	}
	if rule.Cooldown < 0 {
		rule.Cooldown = DefaultCooldown
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	locks := make(map[models.BinName]*sync.Mutex, len(models.AllBins))
	for _, bin := range models.AllBins {
		locks[bin] = &sync.Mutex{}
	}

	return &Engine{
		store:    cfg.Store,
		settings: cfg.Settings,
		notifier: cfg.Notifier,
		rule:     rule,
		events:   cfg.Events,
		now:      now,
		locks:    locks,
	}
}

// Rule returns the active alert rule
func (e *Engine) Rule() Rule {
	return e.rule
}

// UpdateLevel stores a new level for a bin and sends an automatic alert when the
// rule allows it. Notifier failures are reported through AlertSent only.
func (e *Engine) UpdateLevel(ctx context.Context, name string, level int) (*UpdateResult, error) {
	bin, err := models.ParseBinName(name)
	if err != nil {
		return nil, err
	}
	level = models.ClampLevel(level)

	mu := e.locks[bin]
	mu.Lock()
	defer mu.Unlock()

	now := e.now()
	state, err := e.store.RecordReading(ctx, bin, level, now)
	if err != nil {
		return nil, fmt.Errorf("record reading: %w", err)
	}

	metrics.ReadingsIngestedTotal.WithLabelValues(string(bin)).Inc()
	metrics.BinLevel.WithLabelValues(string(bin)).Set(float64(level))
	e.emit(models.NewBinEvent(models.EventReadingRecorded, bin, level, now))

	result := &UpdateResult{Bin: bin, Level: level}

	if level < e.rule.Threshold {
		return result, nil
	}
	if !e.rule.ShouldAlert(level, state.LastAlertAt, now) {
		metrics.AlertsSuppressedTotal.WithLabelValues(string(bin)).Inc()
		log := logger.WithComponent("alerts")
		log.Debug().
			Str("bin", string(bin)).
			Int("level", level).
			Time("last_alert_at", state.LastAlertAt).
			Msg("alert suppressed by cooldown")
		return result, nil
	}

	res := e.send(ctx, bin, level, now, false)
	result.AlertSent = res.Sent
	return result, nil
}

// TriggerAlert sends an alert for the bin's latest level regardless of the
// threshold and cooldown.
func (e *Engine) TriggerAlert(ctx context.Context, name string) (notifier.Result, error) {
	bin, err := models.ParseBinName(name)
	if err != nil {
		return notifier.Result{}, err
	}

	mu := e.locks[bin]
	mu.Lock()
	defer mu.Unlock()

	state, err := e.store.GetBin(ctx, bin)
	if err != nil {
		if errors.Is(err, models.ErrBinNotFound) {
			return notifier.Result{}, err
		}
		return notifier.Result{}, fmt.Errorf("load bin: %w", err)
	}

	return e.send(ctx, bin, state.LatestLevel, e.now(), true), nil
}

// send calls the notifier and records the outcome. Caller holds the bin lock.
func (e *Engine) send(ctx context.Context, bin models.BinName, level int, now time.Time, manual bool) notifier.Result {
	log := logger.WithComponent("alerts").With().
		Str("bin", string(bin)).
		Int("level", level).
		Bool("manual", manual).
		Logger()

	mode, sentAction, failedAction := "auto", models.ActionAutoAlertSent, models.ActionAutoAlertFailed
	if manual {
		mode, sentAction, failedAction = "manual", models.ActionManualAlertSent, models.ActionManualAlertFailed
	}

	res := e.notifier.Send(ctx, bin, level)

	if !res.Sent {
		metrics.AlertAttemptsTotal.WithLabelValues(string(bin), mode, "failed").Inc()
		log.Warn().Str("error", res.Error).Msg("alert not sent")
		e.audit(ctx, failedAction, fmt.Sprintf("%s level=%d error=%s", bin, level, res.Error), now)

		event := models.NewBinEvent(models.EventAlertFailed, bin, level, now)
		event.Manual = manual
		event.Detail = res.Error
		e.emit(event)
		return res
	}

	metrics.AlertAttemptsTotal.WithLabelValues(string(bin), mode, "sent").Inc()
	if err := e.store.MarkAlerted(ctx, bin, now); err != nil {
		// the SMS is out; the next qualifying reading may alert again
		log.Error().Err(err).Msg("failed to record alert time")
	}
	log.Info().Str("sid", res.SID).Msg("alert sent")
	e.audit(ctx, sentAction, fmt.Sprintf("%s level=%d sid=%s", bin, level, res.SID), now)

	event := models.NewBinEvent(models.EventAlertSent, bin, level, now)
	event.Manual = manual
	event.Detail = res.SID
	e.emit(event)
	return res
}

// audit writes an action log entry. Failures are logged, never returned.
func (e *Engine) audit(ctx context.Context, action models.ActionType, detail string, at time.Time) {
	log := logger.WithComponent("alerts")

	err := e.store.RecordAction(ctx, models.ActionLogEntry{
		Action:    action,
		Detail:    detail,
		Timestamp: at,
	})
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		log.Error().Err(err).Str("action", string(action)).Msg("failed to log action")
		return
	}
	log.Info().Str("action", string(action)).Str("detail", detail).Msg("action logged")
}

// emit queues an event without blocking; a full queue drops it
func (e *Engine) emit(event *models.BinEvent) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- event:
	default:
		metrics.EventsDroppedTotal.Inc()
	}
}

// Levels returns the latest level of every known bin
func (e *Engine) Levels(ctx context.Context) (map[models.BinName]int, error) {
	bins, err := e.store.ListBins(ctx)
	if err != nil {
		return nil, err
	}

	levels := make(map[models.BinName]int, len(bins))
	for _, b := range bins {
		levels[b.Name] = b.LatestLevel
	}
	return levels, nil
}

// Readings returns up to n readings of a bin in chronological order
func (e *Engine) Readings(ctx context.Context, name string, n int) ([]models.Reading, error) {
	bin, err := models.ParseBinName(name)
	if err != nil {
		return nil, err
	}

	readings, err := e.store.RecentReadings(ctx, bin, n)
	if err != nil {
		return nil, err
	}
	reverse(readings)
	return readings, nil
}

// History returns up to n readings across bins, newest first
func (e *Engine) History(ctx context.Context, n int) ([]models.Reading, error) {
	return e.store.LatestReadings(ctx, n)
}

// Actions returns up to n audit entries, newest first
func (e *Engine) Actions(ctx context.Context, n int) ([]models.ActionLogEntry, error) {
	return e.store.RecentActions(ctx, n)
}

func reverse(readings []models.Reading) {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
}
