package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"binwatch/internal/alerts"
	"binwatch/internal/config"
	"binwatch/internal/handlers"
	"binwatch/internal/kafka"
	"binwatch/internal/logger"
	"binwatch/internal/metrics"
	"binwatch/internal/models"
	"binwatch/internal/notifier"
	"binwatch/internal/state"
	"binwatch/internal/storage"
	"binwatch/internal/worker"
)

const drainTimeout = 15 * time.Second

// Processor wires storage, the alert engine and the HTTP server, and owns
// their lifecycle.
type Processor struct {
	cfg *config.Config

	store       *storage.SQLStore
	redisClient *redis.Client
	producer    *kafka.Producer
	workerPool  *worker.Pool
	engine      *alerts.Engine
	scheduler   *cron.Cron
	httpServer  *http.Server
	events      chan *models.BinEvent

	listener net.Listener
	ready    chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	queueSize := cfg.Kafka.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &Processor{
		cfg:    cfg,
		events: make(chan *models.BinEvent, queueSize),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the HTTP listener is bound
func (p *Processor) Ready() <-chan struct{} {
	return p.ready
}

// Addr returns the bound listen address; valid after Ready
func (p *Processor) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Run starts the service and blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	if err := p.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer p.store.Close()

	settings := p.initSettings(ctx)
	if p.redisClient != nil {
		defer p.redisClient.Close()
	}

	if err := p.initProducer(); err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}

	p.initWorkerPool()
	p.workerPool.Start()

	p.engine = alerts.NewEngine(alerts.Config{
		Store:    p.store,
		Settings: settings,
		Notifier: p.initNotifier(),
		Rule: alerts.Rule{
			Threshold: p.cfg.Alert.Threshold,
			Cooldown:  p.cfg.Alert.Cooldown,
		},
		Events: p.events,
	})

	if err := p.initScheduler(); err != nil {
		p.stopPipeline(false)
		return fmt.Errorf("failed to schedule stats: %w", err)
	}
	p.scheduler.Start()

	if err := p.initHTTPServer(); err != nil {
		p.scheduler.Stop()
		p.stopPipeline(false)
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.Addr()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	close(p.ready)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

// Engine exposes the alert engine; nil before Run
func (p *Processor) Engine() *alerts.Engine {
	return p.engine
}

func (p *Processor) initStore(ctx context.Context) error {
	log := logger.WithComponent("processor")

	store, err := storage.Open(ctx, p.cfg.Storage)
	if err != nil {
		return err
	}
	if err := store.EnsureBins(ctx, models.AllBins); err != nil {
		store.Close()
		return fmt.Errorf("failed to seed bins: %w", err)
	}

	p.store = store
	log.Info().Str("driver", p.cfg.Storage.Driver).Msg("store ready")
	return nil
}

// initSettings puts the redis cache in front of the store when configured.
// An unreachable redis is not fatal; the store alone is authoritative.
func (p *Processor) initSettings(ctx context.Context) storage.SettingsStore {
	log := logger.WithComponent("processor")
	if !p.cfg.Redis.Enabled() {
		return p.store
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client, err := state.NewRedisClient(pingCtx, p.cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Str("addr", p.cfg.Redis.Addr).Msg("redis unavailable, settings served from store")
		return p.store
	}

	p.redisClient = client
	log.Info().Str("addr", p.cfg.Redis.Addr).Dur("ttl", p.cfg.Redis.TTL).Msg("settings cache enabled")
	return state.NewCachedSettings(p.store, client, p.cfg.Redis.TTL)
}

func (p *Processor) initProducer() error {
	log := logger.WithComponent("processor")
	if !p.cfg.Kafka.Enabled() {
		log.Info().Msg("event stream disabled")
		return nil
	}

	producer, err := kafka.NewProducer(p.cfg.Kafka)
	if err != nil {
		return err
	}

	p.producer = producer
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.Topic).
		Msg("kafka producer initialized")
	return nil
}

func (p *Processor) initWorkerPool() {
	var publisher worker.Publisher = worker.Discard{}
	if p.producer != nil {
		publisher = p.producer
	}

	p.workerPool = worker.NewPool(worker.Config{
		Publisher:    publisher,
		Events:       p.events,
		Workers:      p.cfg.Kafka.Workers,
		BatchSize:    p.cfg.Kafka.Producer.BatchSize,
		BatchTimeout: p.cfg.Kafka.Producer.BatchTimeout,
	})
}

func (p *Processor) initNotifier() notifier.Notifier {
	twilio := notifier.NewTwilio(p.cfg.Twilio)
	if !twilio.Configured() {
		log := logger.WithComponent("processor")
		log.Warn().Msg("twilio not configured; alerts will be recorded as failed")
	}
	return twilio
}

func (p *Processor) initScheduler() error {
	p.scheduler = cron.New()
	_, err := p.scheduler.AddFunc(p.cfg.Server.StatsSchedule, p.reportStats)
	return err
}

func (p *Processor) initHTTPServer() error {
	router := handlers.NewRouter(handlers.RouterConfig{
		API: handlers.NewAPIHandler(handlers.APIConfig{Service: p.engine}),
		Pages: handlers.NewPageHandler(handlers.PageConfig{
			Service:   p.engine,
			Timezone:  p.cfg.Server.DisplayTimezone,
			Threshold: p.engine.Rule().Threshold,
		}),
		Health:  http.HandlerFunc(p.healthHandler),
		Stats:   http.HandlerFunc(p.statsHandler),
		Metrics: promhttp.Handler(),
	})

	listener, err := net.Listen("tcp", p.cfg.Server.Addr())
	if err != nil {
		return err
	}
	p.listener = listener

	p.httpServer = &http.Server{
		Handler:      router,
		ReadTimeout:  p.cfg.Server.ReadTimeout,
		WriteTimeout: p.cfg.Server.WriteTimeout,
		IdleTimeout:  p.cfg.Server.IdleTimeout,
	}
	return nil
}

// shutdown stops intake first, then drains the event pipeline
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	timeout := p.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	serverErr := p.httpServer.Shutdown(shutdownCtx)
	if serverErr != nil {
		log.Error().Err(serverErr).Msg("HTTP server shutdown error")
	}

	<-p.scheduler.Stop().Done()

	// handlers may still be emitting if the server did not stop cleanly
	p.stopPipeline(serverErr == nil)

	p.wg.Wait()
	log.Info().Msg("processor stopped gracefully")
	return nil
}

// stopPipeline drains or stops the worker pool and closes the producer.
// The event channel is only closed once nothing can send on it.
func (p *Processor) stopPipeline(closeEvents bool) {
	log := logger.WithComponent("processor")

	if closeEvents {
		close(p.events)
		if p.workerPool.Drain(drainTimeout) {
			log.Info().Msg("workers stopped gracefully")
		} else {
			log.Warn().Msg("worker drain timeout - forcing exit")
		}
	} else {
		p.workerPool.Stop()
	}

	if p.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
}

// Stats is the body of /stats and the periodic stats log line
type Stats struct {
	Levels   map[models.BinName]int `json:"levels"`
	Worker   worker.Stats           `json:"worker"`
	Producer *kafka.ProducerStats   `json:"producer,omitempty"`
	Queue    QueueStats             `json:"queue"`
}

// QueueStats describes the event queue
type QueueStats struct {
	Buffered int `json:"buffered"`
	Capacity int `json:"capacity"`
}

func (p *Processor) collectStats(ctx context.Context) (Stats, error) {
	levels, err := p.engine.Levels(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Levels: levels,
		Worker: p.workerPool.Stats(),
		Queue:  QueueStats{Buffered: len(p.events), Capacity: cap(p.events)},
	}
	if p.producer != nil {
		ps := p.producer.Stats()
		stats.Producer = &ps
	}
	return stats, nil
}

// reportStats logs a stats line; run by the scheduler
func (p *Processor) reportStats() {
	log := logger.WithComponent("processor")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := p.collectStats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to collect stats")
		return
	}
	metrics.EventQueueSize.Set(float64(stats.Queue.Buffered))

	event := log.Info().
		Uint64("worker_processed", stats.Worker.Processed).
		Uint64("worker_failed", stats.Worker.Failed).
		Int("queue_size", stats.Queue.Buffered)
	for bin, level := range stats.Levels {
		event = event.Int("level_"+string(bin), level)
	}
	if stats.Producer != nil {
		event = event.
			Uint64("producer_sent", stats.Producer.MessagesSent).
			Uint64("producer_failed", stats.Producer.MessagesFailed)
	}
	event.Msg("stats")
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := p.store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := p.collectStats(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}
