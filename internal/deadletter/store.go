// Package deadletter stores messages the consumer gave up on and replays them
// onto Kafka later.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

// HeaderReplays carries how many times a message has already been replayed
// from the dead-letter table, so a message that fails again after a replay
// keeps counting towards quarantine.
const HeaderReplays = "x-dlq-replays"

// Entry is one dead-lettered Kafka message.
type Entry struct {
	ID        int64
	Topic     string
	Key       []byte
	Payload   []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Attempts  int
	Reason    string
	// RetryCount counts replay attempts so far, including those of earlier
	// entries for the same message.
	RetryCount int
	// Permanent entries failed in a way no replay can fix.
	Permanent bool
}

// permanent is implemented by errors that must not be retried.
type permanent interface {
	Permanent() bool
}

// EntryFromMessage captures msg together with why it failed.
func EntryFromMessage(msg kafka.Message, attempts int, cause error) Entry {
	entry := Entry{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Payload:   msg.Value,
		Headers:   make(map[string]string, len(msg.Headers)),
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Attempts:  attempts,
		Reason:    "unknown",
	}
	if entry.Payload == nil {
		entry.Payload = []byte{}
	}
	for _, h := range msg.Headers {
		if h.Key == HeaderReplays {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				entry.RetryCount = n
			}
			continue
		}
		entry.Headers[h.Key] = string(h.Value)
	}
	if cause != nil {
		entry.Reason = cause.Error()
		var p permanent
		entry.Permanent = errors.As(cause, &p) && p.Permanent()
	}
	return entry
}

// Message rebuilds the Kafka message to publish on replay, stamped with the
// replay count it represents.
func (e Entry) Message() kafka.Message {
	msg := kafka.Message{Key: e.Key, Value: e.Payload}
	for key, value := range e.Headers {
		if key == HeaderReplays {
			continue
		}
		msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderReplays, Value: []byte(strconv.Itoa(e.RetryCount + 1))})
	return msg
}

// Store persists failed messages in recommendation_dlq.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore initialises a store backed by the provided connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Write records entry as due for replay immediately.
func (s *Store) Write(ctx context.Context, entry Entry) error {
	headers := entry.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recommendation_dlq (topic, message_key, payload, headers, source_partition, source_offset, attempts, reason, retry_count, permanent, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		entry.Topic, entry.Key, entry.Payload, headers, entry.Partition, entry.Offset, entry.Attempts, entry.Reason, entry.RetryCount, entry.Permanent,
	)
	if err != nil {
		return fmt.Errorf("write dead letter for %s/%d@%d: %w", entry.Topic, entry.Partition, entry.Offset, err)
	}
	recordWritten(entry.Topic)
	return nil
}

// DeadLetter satisfies consumer.DeadLetterSink.
func (s *Store) DeadLetter(ctx context.Context, msg kafka.Message, attempts int, cause error) error {
	return s.Write(ctx, EntryFromMessage(msg, attempts, cause))
}
