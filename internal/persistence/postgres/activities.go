// Package postgres implements the domain repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/observability"
)

const activityColumns = `activity_id, user_id, activity_type, duration_min, calories_burned, start_time, additional_metrics, created_at, updated_at`

// ActivityRepository provides Postgres-backed persistence for activities.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Create inserts a new activity row.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	metrics := activity.AdditionalMetrics
	if metrics == nil {
		metrics = map[string]any{}
	}

	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.pool.Exec(ctx, stmt,
		activity.ID,
		activity.UserID,
		string(activity.ActivityType),
		activity.Duration,
		activity.CaloriesBurned,
		activity.StartTime,
		metrics,
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// Get retrieves an activity by ID, returning nil when it does not exist.
func (r *ActivityRepository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities WHERE activity_id=$1`

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// ListByUser returns activities for a user ordered by start time, newest first.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (start_time, activity_id) < ($3, $4)`
		args = append(args, cursor.StartTime, cursor.ID)
	}

	query += ` ORDER BY start_time DESC, activity_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, nextCursor, nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		activity     domain.Activity
		activityType string
	)
	if err := row.Scan(
		&activity.ID,
		&activity.UserID,
		&activityType,
		&activity.Duration,
		&activity.CaloriesBurned,
		&activity.StartTime,
		&activity.AdditionalMetrics,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		return domain.Activity{}, err
	}
	activity.ActivityType = domain.ActivityType(activityType)
	return activity, nil
}
