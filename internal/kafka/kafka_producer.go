package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/metrics"
	"binwatch/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize event")
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes bin events to Kafka through a small pool of writers
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []messageWriter
	pool    chan messageWriter
	closed  atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewProducer creates a producer for the configured brokers and topic
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	pc := cfg.Producer
	if pc.PoolSize <= 0 {
		pc.PoolSize = 2
	}

	writers := make([]messageWriter, pc.PoolSize)
	for i := range writers {
		writers[i] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // events of one bin share a partition
			BatchSize:    pc.BatchSize,
			BatchTimeout: pc.BatchTimeout,
			WriteTimeout: pc.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(pc.RequiredAcks),
			Compression:  getCompression(pc.Compression),
			MaxAttempts:  1, // retries are ours
		}
	}

	return newProducer(cfg.Topic, pc, writers), nil
}

func newProducer(topic string, cfg config.ProducerConfig, writers []messageWriter) *Producer {
	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: writers,
		pool:    make(chan messageWriter, len(writers)),
	}
	for _, w := range writers {
		p.pool <- w
	}
	return p
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// toMessage serializes an event, keyed by bin
func toMessage(event *models.BinEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	return kafka.Message{
		Key:   []byte(event.PartitionKey()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "bin", Value: []byte(event.Bin)},
			{Key: "type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}, nil
}

// Publish sends a single event
func (p *Producer) Publish(ctx context.Context, event *models.BinEvent) error {
	return p.PublishBatch(ctx, []*models.BinEvent{event})
}

// PublishBatch sends events in one write. Events that fail to serialize are
// skipped and counted as failed.
func (p *Producer) PublishBatch(ctx context.Context, events []*models.BinEvent) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(events) == 0 {
		return nil
	}

	log := logger.WithComponent("kafka_producer")

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := toMessage(event)
		if err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("dropping event")
			p.messagesFailed.Add(1)
			metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil
	}

	var writer messageWriter
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.messagesFailed.Add(uint64(len(messages)))
		return ctx.Err()
	}

	start := time.Now()
	err := p.writeWithRetry(ctx, writer, messages)
	duration := time.Since(start)
	metrics.KafkaPublishDuration.Observe(duration.Seconds())

	if err != nil {
		p.messagesFailed.Add(uint64(len(messages)))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	var size uint64
	for _, msg := range messages {
		size += uint64(len(msg.Value))
	}
	p.messagesSent.Add(uint64(len(messages)))
	p.bytesWritten.Add(size)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(messages)))
	metrics.KafkaBytesWritten.Add(float64(size))

	log.Debug().
		Int("batch_size", len(messages)).
		Dur("duration", duration).
		Msg("events published")
	return nil
}

// writeWithRetry writes messages with exponential backoff
func (p *Producer) writeWithRetry(ctx context.Context, writer messageWriter, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.KafkaPublishRetries.Inc()
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	log.Error().
		Err(lastErr).
		Int("attempts", p.cfg.MaxRetries+1).
		Int("batch_size", len(messages)).
		Msg("kafka publish failed")
	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}
