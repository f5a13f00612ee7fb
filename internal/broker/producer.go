// Package broker publishes activity events to Kafka.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithWriteTimeout bounds a single broker write.
func WithWriteTimeout(timeout time.Duration) ProducerOption {
	return func(p *Producer) {
		if timeout > 0 {
			p.writeTimeout = timeout
		}
	}
}

// WithProducerLogger routes kafka-go writer errors to logger.
func WithProducerLogger(logger *zap.Logger) ProducerOption {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Producer writes synchronously to Kafka, keeping one writer per topic. It is
// shared by the activity publisher and the dead-letter replay loop.
type Producer struct {
	brokers      []string
	writeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewProducer creates a Producer for the given bootstrap brokers.
func NewProducer(brokers []string, opts ...ProducerOption) *Producer {
	p := &Producer{
		brokers:      brokers,
		writeTimeout: 10 * time.Second,
		logger:       zap.NewNop(),
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages blocks until every message is acknowledged by all in-sync
// replicas or the write fails.
func (p *Producer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		// Every call is a single synchronous message; don't wait for a batch.
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: p.writeTimeout,
		ErrorLogger:  kafka.LoggerFunc(p.logger.With(zap.String("topic", topic)).Sugar().Errorf),
	}
	p.writers[topic] = w
	return w
}

// Close flushes and closes every writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
		delete(p.writers, topic)
	}
	return errs
}
