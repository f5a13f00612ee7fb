package domain

import "context"

// RecommendationRepository persists recommendations keyed by activity id.
type RecommendationRepository interface {
	// Upsert inserts the recommendation or overwrites the one already stored
	// for the same ActivityID, returning the stored row.
	Upsert(ctx context.Context, rec Recommendation) (*Recommendation, error)
	GetByActivity(ctx context.Context, activityID string) (*Recommendation, error)
	ListByUser(ctx context.Context, userID string) ([]Recommendation, error)
}

// RecommendationService is the read side exposed to API callers.
type RecommendationService struct {
	repo RecommendationRepository
}

// NewRecommendationService constructs a RecommendationService.
func NewRecommendationService(repo RecommendationRepository) *RecommendationService {
	return &RecommendationService{repo: repo}
}

// ByUser returns every recommendation generated for the user, newest first.
func (s *RecommendationService) ByUser(ctx context.Context, userID string) ([]Recommendation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ByActivity returns the recommendation for a single activity.
func (s *RecommendationService) ByActivity(ctx context.Context, activityID string) (*Recommendation, error) {
	rec, err := s.repo.GetByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecommendationNotFound
	}
	return rec, nil
}
