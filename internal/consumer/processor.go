// Package consumer drives recommendation generation from Kafka activity events.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers           = 4
	defaultMaxAttempts       = 5
	defaultRetryBaseDelay    = time.Second
	defaultRetryMaxDelay     = 30 * time.Second
	defaultProcessingTimeout = 90 * time.Second
	commitTimeout            = 10 * time.Second
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// DeadLetterSink stores messages that exhausted their attempts.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, msg kafka.Message, attempts int, cause error) error
}

// Message is the decoded representation of a Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Timestamp time.Time
	Headers   map[string]string
	Payload   []byte
	// Attempt is 1 on first delivery to the handler.
	Attempt int
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent lets dead-letter stores recognise the error without importing
// this package.
func (e *permanentError) Permanent() bool { return true }

// Permanent marks err as not worth retrying; the message is dead-lettered
// right away.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkers bounds how many messages are handled concurrently.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxAttempts sets how many times a message is handed to the handler
// before it is dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the initial and maximum delay between attempts.
func WithRetryDelay(base, max time.Duration) Option {
	return func(p *Processor) {
		if base > 0 {
			p.retryBaseDelay = base
		}
		if max >= base && max > 0 {
			p.retryMaxDelay = max
		}
	}
}

// WithProcessingTimeout bounds a single handler attempt.
func WithProcessingTimeout(timeout time.Duration) Option {
	return func(p *Processor) {
		if timeout > 0 {
			p.processingTimeout = timeout
		}
	}
}

// WithDeadLetterSink sets where exhausted messages go. Without one they are
// logged and committed.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(p *Processor) {
		p.deadLetters = sink
	}
}

// Processor pulls messages from Kafka and dispatches them to a Handler on a
// bounded pool of workers. Offsets are committed per partition in fetch order,
// once every earlier message has been persisted or dead-lettered.
type Processor struct {
	reader      Reader
	handler     Handler
	deadLetters DeadLetterSink
	logger      *zap.Logger

	workers           int
	maxAttempts       int
	retryBaseDelay    time.Duration
	retryMaxDelay     time.Duration
	processingTimeout time.Duration

	tracker *commitTracker
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:            reader,
		handler:           handler,
		logger:            zap.NewNop(),
		workers:           defaultWorkers,
		maxAttempts:       defaultMaxAttempts,
		retryBaseDelay:    defaultRetryBaseDelay,
		retryMaxDelay:     defaultRetryMaxDelay,
		processingTimeout: defaultProcessingTimeout,
		tracker:           newCommitTracker(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches messages until the context is cancelled or the reader fails
// with a cancellation, then waits for in-flight workers before returning.
func (p *Processor) Run(ctx context.Context) error {
	var workers errgroup.Group
	workers.SetLimit(p.workers)

	for {
		if err := ctx.Err(); err != nil {
			_ = workers.Wait()
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				_ = workers.Wait()
				return err
			}
			p.logger.Warn("fetch error", zap.Error(err))
			recordFetchError()
			continue
		}

		p.tracker.track(msg)
		// Blocks while every worker is busy.
		workers.Go(func() error {
			p.process(ctx, msg)
			return nil
		})
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) {
	inFlightGauge.Inc()
	defer inFlightGauge.Dec()

	logger := p.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	attempts, err := p.handleWithRetry(ctx, msg, logger)
	if err == nil {
		recordProcessed(msg.Topic, msg.Time)
		p.complete(ctx, msg)
		return
	}
	if ctx.Err() != nil {
		// Left uncommitted; redelivered after restart.
		logger.Info("shutdown interrupted message handling", zap.Int("attempts", attempts), zap.Error(err))
		return
	}

	logger.Error("message failed, dead-lettering", zap.Int("attempts", attempts), zap.Error(err))
	if !p.deadLetter(ctx, msg, attempts, err, logger) {
		return
	}
	recordDeadLettered(msg.Topic)
	p.complete(ctx, msg)
}

func (p *Processor) handleWithRetry(ctx context.Context, msg kafka.Message, logger *zap.Logger) (int, error) {
	decoded := decodeMessage(msg)

	attempts := 0
	operation := func() error {
		attempts++
		decoded.Attempt = attempts

		attemptCtx, cancel := context.WithTimeout(ctx, p.processingTimeout)
		defer cancel()

		err := p.handler.Handle(attemptCtx, decoded)
		if err == nil {
			return nil
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("attempt %d timed out after %s: %w", attempts, p.processingTimeout, err)
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.retryBaseDelay
	policy.MaxInterval = p.retryMaxDelay
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.maxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			recordRetry(msg.Topic)
			logger.Warn("handler attempt failed, retrying",
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	)
	return attempts, err
}

// deadLetter keeps trying to store msg until it succeeds or ctx ends; the
// partition cannot advance past an unstored failure.
func (p *Processor) deadLetter(ctx context.Context, msg kafka.Message, attempts int, cause error, logger *zap.Logger) bool {
	if p.deadLetters == nil {
		logger.Warn("no dead-letter sink configured, dropping message")
		return true
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.retryBaseDelay
	policy.MaxInterval = p.retryMaxDelay
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return p.deadLetters.DeadLetter(ctx, msg, attempts, cause)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Error("dead-letter write failed", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		logger.Error("giving up on dead-letter write", zap.Error(err))
		return false
	}
	return true
}

func (p *Processor) complete(ctx context.Context, msg kafka.Message) {
	p.tracker.commitMu.Lock()
	defer p.tracker.commitMu.Unlock()

	next, ok := p.tracker.complete(msg)
	if !ok {
		return
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := p.reader.CommitMessages(commitCtx, next); err != nil {
		recordCommitError(next.Topic)
		p.logger.Warn("commit error",
			zap.String("topic", next.Topic),
			zap.Int("partition", next.Partition),
			zap.Int64("offset", next.Offset),
			zap.Error(err),
		)
	}
}

func decodeMessage(msg kafka.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}
	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Timestamp: msg.Time,
		Headers:   headers,
		Payload:   msg.Value,
	}
}
