package deadletter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const maxReplayDelay = time.Hour

// Publisher writes replayed messages back to Kafka.
type Publisher interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// Manager replays dead-lettered messages and quarantines entries that keep failing.
type Manager struct {
	pool       *pgxpool.Pool
	publisher  Publisher
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewManager constructs a Manager with the provided pool and retry configuration.
func NewManager(pool *pgxpool.Pool, publisher Publisher, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{pool: pool, publisher: publisher, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce processes a batch of due entries and returns how many were replayed.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id FROM recommendation_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                   ORDER BY created_at
                   LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, id := range ids {
		ok, procErr := m.handleEntry(ctx, id)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		if ok {
			replayed++
		}
	}
	m.updateBacklog(ctx)
	return replayed, err
}

// handleEntry applies the replay/retry/quarantine decision to one entry under
// a row lock, so concurrent managers never replay the same entry twice.
func (m *Manager) handleEntry(ctx context.Context, id int64) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	entry, err := lockEntry(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger := m.logger.With(zap.Int64("dlq_id", entry.ID), zap.String("topic", entry.Topic))

	if reason := quarantineReason(entry, m.maxRetries); reason != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE recommendation_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			reason, entry.ID,
		); err != nil {
			return false, err
		}
		recordQuarantined(entry.Topic)
		logger.Warn("dead letter quarantined", zap.String("reason", reason), zap.Int("retry_count", entry.RetryCount))
		return false, tx.Commit(ctx)
	}

	if pubErr := m.publisher.WriteMessages(ctx, entry.Topic, entry.Message()); pubErr != nil {
		delay := backoffDelay(m.baseDelay, entry.RetryCount+1)
		if _, err := tx.Exec(ctx,
			`UPDATE recommendation_dlq
               SET retry_count = retry_count + 1,
                   last_attempt_at = NOW(),
                   next_retry_at = NOW() + $1::interval,
                   reason = $2
             WHERE dlq_id = $3`,
			delay, pubErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		recordRetryScheduled(entry.Topic)
		logger.Warn("dead letter replay failed", zap.Duration("next_in", delay), zap.Error(pubErr))
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM recommendation_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	recordReplayed(entry.Topic)
	logger.Info("dead letter replayed")
	return true, nil
}

// quarantineReason returns why entry must not be replayed, or "" if it may be.
func quarantineReason(entry Entry, maxRetries int) string {
	switch {
	case entry.Permanent:
		return "permanent failure"
	case entry.RetryCount >= maxRetries:
		return "retry limit reached"
	default:
		return ""
	}
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func backoffDelay(baseDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return maxReplayDelay
	}
	delay := time.Duration(1<<uint(attempt-1)) * baseDelay
	if delay > maxReplayDelay || delay <= 0 {
		delay = maxReplayDelay
	}
	return delay
}

func lockEntry(ctx context.Context, tx pgx.Tx, id int64) (Entry, error) {
	var entry Entry
	err := tx.QueryRow(ctx,
		`SELECT dlq_id, topic, message_key, payload, headers, source_partition, source_offset, attempts, reason, retry_count, permanent
           FROM recommendation_dlq
          WHERE dlq_id = $1 AND quarantined_at IS NULL
          FOR UPDATE SKIP LOCKED`, id,
	).Scan(&entry.ID, &entry.Topic, &entry.Key, &entry.Payload, &entry.Headers, &entry.Partition, &entry.Offset, &entry.Attempts, &entry.Reason, &entry.RetryCount, &entry.Permanent)
	return entry, err
}

func (m *Manager) updateBacklog(ctx context.Context) {
	var count int
	if err := m.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recommendation_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	backlogGauge.Set(float64(count))
}
