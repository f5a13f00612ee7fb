// Package memory keeps activities and recommendations in process memory for
// local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/observability"
)

// ActivityRepository stores activities in a map keyed by id.
type ActivityRepository struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
}

// NewActivityRepository constructs an empty repository.
func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{activities: make(map[string]domain.Activity)}
}

// Create implements domain.ActivityRepository.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}
	if _, exists := r.activities[activity.ID]; exists {
		return fmt.Errorf("activity %s already exists", activity.ID)
	}
	activity.AdditionalMetrics = cloneMetrics(activity.AdditionalMetrics)
	r.activities[activity.ID] = activity
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// Get returns the activity or nil when it does not exist.
func (r *ActivityRepository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[activityID]
	if !ok {
		return nil, nil
	}
	activity.AdditionalMetrics = cloneMetrics(activity.AdditionalMetrics)
	return &activity, nil
}

// ListByUser mirrors the Postgres keyset ordering: start time then id, both descending.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Activity, 0)
	for _, activity := range r.activities {
		if activity.UserID != userID {
			continue
		}
		if cursor != nil && !before(activity, *cursor) {
			continue
		}
		matches = append(matches, activity)
	}
	sort.Slice(matches, func(i, j int) bool {
		return before(matches[j], domain.Cursor{StartTime: matches[i].StartTime, ID: matches[i].ID})
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	for i := range matches {
		matches[i].AdditionalMetrics = cloneMetrics(matches[i].AdditionalMetrics)
	}

	var next *domain.Cursor
	if limit > 0 && len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return matches, next, nil
}

// before reports whether activity sorts strictly after the cursor position in
// a newest-first listing.
func before(activity domain.Activity, cursor domain.Cursor) bool {
	if activity.StartTime.Equal(cursor.StartTime) {
		return activity.ID < cursor.ID
	}
	return activity.StartTime.Before(cursor.StartTime)
}

func cloneMetrics(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
