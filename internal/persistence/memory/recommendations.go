package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/observability"
)

// RecommendationRepository keeps at most one recommendation per activity.
type RecommendationRepository struct {
	mu         sync.RWMutex
	byActivity map[string]domain.Recommendation
}

// NewRecommendationRepository constructs an empty repository.
func NewRecommendationRepository() *RecommendationRepository {
	return &RecommendationRepository{byActivity: make(map[string]domain.Recommendation)}
}

// Upsert stores rec, replacing any earlier recommendation for the same
// activity while keeping its id and creation time.
func (r *RecommendationRepository) Upsert(ctx context.Context, rec domain.Recommendation) (*domain.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byActivity[rec.ActivityID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	rec = cloneRecommendation(rec)
	r.byActivity[rec.ActivityID] = rec
	observability.RecordRecommendationPersisted(rec.UpdatedAt)

	out := cloneRecommendation(rec)
	return &out, nil
}

// GetByActivity returns the recommendation for an activity, or nil.
func (r *RecommendationRepository) GetByActivity(ctx context.Context, activityID string) (*domain.Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byActivity[activityID]
	if !ok {
		return nil, nil
	}
	out := cloneRecommendation(rec)
	return &out, nil
}

// ListByUser returns the user's recommendations, newest first.
func (r *RecommendationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.Recommendation, 0)
	for _, rec := range r.byActivity {
		if rec.UserID == userID {
			results = append(results, cloneRecommendation(rec))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func cloneRecommendation(rec domain.Recommendation) domain.Recommendation {
	rec.Improvements = append([]string(nil), rec.Improvements...)
	rec.Suggestions = append([]string(nil), rec.Suggestions...)
	rec.Safety = append([]string(nil), rec.Safety...)
	return rec
}
