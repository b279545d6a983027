package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"binwatch/internal/models"
	"binwatch/internal/worker"
)

// MockPublisher counts published events and can fail batches or single sends
type MockPublisher struct {
	published   atomic.Uint64
	batches     atomic.Uint64
	failBatch   bool
	failSingles bool

	mu      sync.Mutex
	maxSeen int
}

func (m *MockPublisher) Publish(ctx context.Context, event *models.BinEvent) error {
	if m.failSingles {
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *MockPublisher) PublishBatch(ctx context.Context, events []*models.BinEvent) error {
	m.mu.Lock()
	if len(events) > m.maxSeen {
		m.maxSeen = len(events)
	}
	m.mu.Unlock()

	if m.failBatch {
		return context.DeadlineExceeded
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(events)))
	return nil
}

func newEvent(i int) *models.BinEvent {
	bin := models.AllBins[i%len(models.AllBins)]
	return models.NewBinEvent(models.EventReadingRecorded, bin, i%101, time.Now())
}

func TestPool_DrainsAllEvents(t *testing.T) {
	ch := make(chan *models.BinEvent, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Events:       ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: time.Second,
	})
	pool.Start()

	numEvents := 25
	for i := 0; i < numEvents; i++ {
		ch <- newEvent(i)
	}
	close(ch)

	if !pool.Drain(5 * time.Second) {
		t.Fatal("pool did not drain in time")
	}

	if got := pool.Stats().Processed; got != uint64(numEvents) {
		t.Errorf("expected %d processed, got %d", numEvents, got)
	}
	if got := mock.published.Load(); got != uint64(numEvents) {
		t.Errorf("expected %d published, got %d", numEvents, got)
	}
	if mock.maxSeen > 10 {
		t.Errorf("batch size exceeded: %d", mock.maxSeen)
	}
}

func TestPool_FlushesOnTimeout(t *testing.T) {
	ch := make(chan *models.BinEvent, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Events:       ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		ch <- newEvent(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mock.published.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := mock.published.Load(); got != 3 {
		t.Errorf("expected 3 published after timeout flush, got %d", got)
	}
}

func TestPool_FallsBackToSingleEvents(t *testing.T) {
	ch := make(chan *models.BinEvent, 10)
	mock := &MockPublisher{failBatch: true}

	pool := worker.NewPool(worker.Config{
		Publisher: mock,
		Events:    ch,
		BatchSize: 5,
	})
	pool.Start()

	for i := 0; i < 5; i++ {
		ch <- newEvent(i)
	}
	close(ch)
	pool.Drain(5 * time.Second)

	stats := pool.Stats()
	if stats.Processed != 5 || stats.Failed != 0 {
		t.Errorf("expected 5 processed and 0 failed, got %+v", stats)
	}
}

func TestPool_CountsFailures(t *testing.T) {
	ch := make(chan *models.BinEvent, 10)
	mock := &MockPublisher{failBatch: true, failSingles: true}

	pool := worker.NewPool(worker.Config{
		Publisher: mock,
		Events:    ch,
		BatchSize: 2,
	})
	pool.Start()

	ch <- newEvent(1)
	ch <- newEvent(2)
	close(ch)
	pool.Drain(5 * time.Second)

	if got := pool.Stats().Failed; got != 2 {
		t.Errorf("expected 2 failed, got %d", got)
	}
}

func TestPool_DefaultsToDiscard(t *testing.T) {
	ch := make(chan *models.BinEvent, 1)
	pool := worker.NewPool(worker.Config{Events: ch})
	pool.Start()

	ch <- newEvent(0)
	close(ch)

	if !pool.Drain(time.Second) {
		t.Fatal("pool did not drain")
	}
	if got := pool.Stats().Processed; got != 1 {
		t.Errorf("expected discard publisher to accept the event, got %d", got)
	}
}
