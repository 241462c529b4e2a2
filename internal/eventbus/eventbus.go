// Package eventbus is a best-effort Kafka publisher for Name Service
// metadata-change events (chunkWritten, allChunksWritten, chunkDeleted).
// Publishing never blocks the caller beyond enqueueing the record, and a
// delivery failure is only logged -- a lost notification never affects NS's
// own authoritative metadata state.
package eventbus

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"distcompute/internal/logging"
)

// closeFlushTimeout bounds how long Close waits for in-flight records
// before giving up, so an unreachable broker never hangs shutdown.
const closeFlushTimeout = 5 * time.Second

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string
	TLS     bool
	Logger  *slog.Logger
}

// Publisher implements nameservice.EventPublisher over a Kafka topic.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// New connects a Publisher to cfg.Brokers.
func New(cfg Config) (*Publisher, error) {
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbus kafka client: %w", err)
	}
	return &Publisher{
		client: client,
		topic:  cfg.Topic,
		logger: logging.Default(cfg.Logger).With("component", "eventbus", "topic", cfg.Topic),
	}, nil
}

// Publish enqueues event for fileName and returns immediately; delivery
// happens asynchronously and a failure is only logged.
func (p *Publisher) Publish(event, fileName string) {
	rec := &kgo.Record{Topic: p.topic, Key: []byte(fileName), Value: []byte(event)}
	p.client.Produce(context.Background(), rec, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("publish failed", "event", event, "file", fileName, "error", err)
		}
	})
}

// Close flushes in-flight records, bounded by closeFlushTimeout so an
// unreachable broker never hangs shutdown, then closes the underlying
// client.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close failed", "error", err)
	}
	p.client.Close()
	return nil
}
