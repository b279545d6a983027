package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binwatch/internal/config"
	"binwatch/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	written  []kafka.Message
	attempts int
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent(bin models.BinName, level int) *models.BinEvent {
	return models.NewBinEvent(models.EventReadingRecorded, bin, level, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Topic: "bin-events"})
	assert.Error(t, err)

	_, err = NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "bin-events"})
	require.NoError(t, err)
	assert.Len(t, p.writers, 2)
	assert.NoError(t, p.Close())
}

func TestPublishBatch_KeysAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("bin-events", config.ProducerConfig{}, []messageWriter{w})

	events := []*models.BinEvent{testEvent(models.BinYellow, 40), testEvent(models.BinBlue, 90)}
	require.NoError(t, p.PublishBatch(context.Background(), events))

	require.Len(t, w.written, 2)
	msg := w.written[1]
	assert.Equal(t, "blue", string(msg.Key))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "type", Value: []byte("reading_recorded")})
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event_id", Value: []byte(events[1].ID)})

	var decoded models.BinEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 90, decoded.Level)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.MessagesSent)
	assert.NotZero(t, stats.BytesWritten)
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newProducer("bin-events", config.ProducerConfig{MaxRetries: 3, RetryBackoff: time.Millisecond}, []messageWriter{w})

	require.NoError(t, p.Publish(context.Background(), testEvent(models.BinGreen, 10)))
	assert.Equal(t, 3, w.attempts)
	assert.Len(t, w.written, 1)
}

func TestPublish_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newProducer("bin-events", config.ProducerConfig{MaxRetries: 1, RetryBackoff: time.Millisecond}, []messageWriter{w})

	err := p.Publish(context.Background(), testEvent(models.BinGreen, 10))
	assert.Error(t, err)
	assert.Equal(t, 2, w.attempts)
	assert.Equal(t, uint64(1), p.Stats().MessagesFailed)
}

func TestPublish_AfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("bin-events", config.ProducerConfig{}, []messageWriter{w})

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), testEvent(models.BinYellow, 1)), ErrProducerClosed)
	assert.NoError(t, p.Close())
}

func TestGetCompression(t *testing.T) {
	assert.Equal(t, compress.Gzip, getCompression("gzip"))
	assert.Equal(t, compress.Zstd, getCompression("zstd"))
	assert.Equal(t, compress.None, getCompression(""))
}
