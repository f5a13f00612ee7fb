package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/observability"
)

const recommendationColumns = `recommendation_id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at, updated_at`

// RecommendationRepository stores one recommendation per activity.
type RecommendationRepository struct {
	pool *pgxpool.Pool
}

// NewRecommendationRepository constructs a RecommendationRepository.
func NewRecommendationRepository(pool *pgxpool.Pool) *RecommendationRepository {
	return &RecommendationRepository{pool: pool}
}

// Upsert inserts rec or overwrites the row for the same activity_id. The
// original recommendation_id and created_at survive an overwrite.
func (r *RecommendationRepository) Upsert(ctx context.Context, rec domain.Recommendation) (*domain.Recommendation, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	const stmt = `INSERT INTO recommendations (` + recommendationColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (activity_id) DO UPDATE SET
            user_id = EXCLUDED.user_id,
            activity_type = EXCLUDED.activity_type,
            recommendation = EXCLUDED.recommendation,
            improvements = EXCLUDED.improvements,
            suggestions = EXCLUDED.suggestions,
            safety = EXCLUDED.safety,
            updated_at = EXCLUDED.updated_at
        RETURNING ` + recommendationColumns

	stored, err := scanRecommendation(r.pool.QueryRow(ctx, stmt,
		rec.ID,
		rec.ActivityID,
		rec.UserID,
		string(rec.ActivityType),
		rec.Recommendation,
		rec.Improvements,
		rec.Suggestions,
		rec.Safety,
		rec.CreatedAt,
		rec.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}
	observability.RecordRecommendationPersisted(stored.UpdatedAt)
	return &stored, nil
}

// GetByActivity returns the recommendation for an activity, or nil when none exists.
func (r *RecommendationRepository) GetByActivity(ctx context.Context, activityID string) (*domain.Recommendation, error) {
	const query = `SELECT ` + recommendationColumns + ` FROM recommendations WHERE activity_id=$1`

	rec, err := scanRecommendation(r.pool.QueryRow(ctx, query, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns the user's recommendations, newest first.
func (r *RecommendationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Recommendation, error) {
	const query = `SELECT ` + recommendationColumns + ` FROM recommendations
        WHERE user_id=$1 ORDER BY created_at DESC, recommendation_id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Recommendation, 0)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func scanRecommendation(row pgx.Row) (domain.Recommendation, error) {
	var (
		rec          domain.Recommendation
		activityType string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.ActivityID,
		&rec.UserID,
		&activityType,
		&rec.Recommendation,
		&rec.Improvements,
		&rec.Suggestions,
		&rec.Safety,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return domain.Recommendation{}, err
	}
	rec.ActivityType = domain.ActivityType(activityType)
	return rec, nil
}
