package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitcoach/internal/domain"
)

func TestActivityRepositoryListsNewestFirstWithCursor(t *testing.T) {
	ctx := context.Background()
	repo := NewActivityRepository()
	base := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, domain.Activity{
			ID:           id,
			UserID:       "user-1",
			ActivityType: domain.ActivityTypeYoga,
			Duration:     20,
			StartTime:    base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, domain.Activity{ID: "other", UserID: "user-2", StartTime: base}))
	require.Error(t, repo.Create(ctx, domain.Activity{ID: "a", UserID: "user-1"}))

	page, cursor, err := repo.ListByUser(ctx, "user-1", nil, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, ids(page))
	require.NotNil(t, cursor)

	rest, next, err := repo.ListByUser(ctx, "user-1", cursor, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids(rest))
	require.Nil(t, next)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestActivityRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewActivityRepository()
	require.NoError(t, repo.Create(ctx, domain.Activity{
		ID:                "a",
		UserID:            "user-1",
		AdditionalMetrics: map[string]any{"steps": float64(100)},
	}))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	got.AdditionalMetrics["steps"] = float64(1)

	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, float64(100), again.AdditionalMetrics["steps"])
}

func TestRecommendationRepositoryUpsertIsKeyedByActivity(t *testing.T) {
	ctx := context.Background()
	repo := NewRecommendationRepository()
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	first, err := repo.Upsert(ctx, domain.Recommendation{
		ActivityID:     "act-1",
		UserID:         "user-1",
		Recommendation: "first",
		CreatedAt:      created,
		UpdatedAt:      created,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	later := created.Add(time.Minute)
	second, err := repo.Upsert(ctx, domain.Recommendation{
		ActivityID:     "act-1",
		UserID:         "user-1",
		Recommendation: "second",
		CreatedAt:      later,
		UpdatedAt:      later,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, created, second.CreatedAt)
	require.Equal(t, later, second.UpdatedAt)

	_, err = repo.Upsert(ctx, domain.Recommendation{ActivityID: "act-2", UserID: "user-1", CreatedAt: later.Add(time.Minute)})
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "act-2", list[0].ActivityID)
	require.Equal(t, "second", list[1].Recommendation)

	none, err := repo.GetByActivity(ctx, "act-3")
	require.NoError(t, err)
	require.Nil(t, none)
}

func ids(activities []domain.Activity) []string {
	out := make([]string, 0, len(activities))
	for _, a := range activities {
		out = append(out, a.ID)
	}
	return out
}
