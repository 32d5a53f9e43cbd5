// Package feed publishes confirmed scam reports to a Kafka topic so
// downstream analytics and blocklist pipelines consume them in real time.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"honeytrap/internal/report"
)

// Config configures the report feed.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RequiredAcks int           `yaml:"required_acks"`
}

// DefaultConfig returns feed defaults. Disabled until brokers are set.
func DefaultConfig() Config {
	return Config{
		Topic:        "honeytrap.reports",
		BatchSize:    100,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		MaxRetries:   3,
		RequiredAcks: int(kafka.RequireOne),
	}
}

// Validate checks the feed configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("feed: at least one broker required")
	}
	if c.Topic == "" {
		return fmt.Errorf("feed: topic required")
	}
	return nil
}

// Producer publishes report payloads to Kafka. Implements report.Sink.
type Producer struct {
	writer    *kafka.Writer
	logger    *slog.Logger
	closed    atomic.Bool
	published atomic.Int64
	errors    atomic.Int64
}

// NewProducer creates the feed producer.
func NewProducer(cfg Config, logger *slog.Logger) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "feed")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  kafka.Snappy,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "source", "kafka-writer")
		}),
	}

	logger.Info("report feed initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Producer{writer: writer, logger: logger}, nil
}

// Publish sends one report payload keyed by session id.
func (p *Producer) Publish(ctx context.Context, payload *report.Payload) error {
	if p.closed.Load() {
		return fmt.Errorf("feed: producer is closed")
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("feed: marshal payload: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.SessionID),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("feed: publish report: %w", err)
	}

	p.published.Add(1)
	p.logger.Debug("report published",
		"session_id", payload.SessionID, "bytes", len(value))
	return nil
}

// Stats returns publish counters.
func (p *Producer) Stats() (published, errors int64) {
	return p.published.Load(), p.errors.Load()
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Info("closing report feed", "published", p.published.Load())
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("feed: close writer: %w", err)
	}
	return nil
}
