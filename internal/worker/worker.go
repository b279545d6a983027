package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"binwatch/internal/logger"
	"binwatch/internal/metrics"
	"binwatch/internal/models"
)

// Publisher delivers bin events downstream
type Publisher interface {
	Publish(ctx context.Context, event *models.BinEvent) error
	PublishBatch(ctx context.Context, events []*models.BinEvent) error
}

// Discard is a Publisher that drops everything; used when no event stream is configured
type Discard struct{}

func (Discard) Publish(ctx context.Context, event *models.BinEvent) error { return nil }

func (Discard) PublishBatch(ctx context.Context, events []*models.BinEvent) error { return nil }

// Pool drains the event queue in batches
type Pool struct {
	publisher    Publisher
	events       <-chan *models.BinEvent
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	Events       <-chan *models.BinEvent
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Publisher == nil {
		cfg.Publisher = Discard{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		events:       cfg.Events,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Drain waits for workers to flush after the event channel is closed,
// giving up after timeout. It reports whether the workers finished.
func (p *Pool) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.Stop()
		return false
	}
}

// Stop cancels in-flight publishes and waits for the workers
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.BinEvent, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.publishBatch(batch)
			return

		case event, ok := <-p.events:
			if !ok {
				p.publishBatch(batch)
				return
			}

			batch = append(batch, event)
			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(batch)
				batch = batch[:0]
			}
			metrics.EventQueueSize.Set(float64(len(p.events)))
			timer.Reset(p.batchTimeout)
		}
	}
}

func (p *Pool) publishBatch(batch []*models.BinEvent) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("batch published")
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to publish batch")

	p.publishIndividually(batch)
}

// publishIndividually retries a failed batch one event at a time
func (p *Pool) publishIndividually(batch []*models.BinEvent) {
	log := logger.WithComponent("worker")

	for _, event := range batch {
		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		err := p.publisher.Publish(ctx, event)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("bin", string(event.Bin)).
				Msg("failed to publish event")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}
		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}
