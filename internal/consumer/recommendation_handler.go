package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/fitcoach/internal/ai"
	"example.com/fitcoach/internal/broker"
	"example.com/fitcoach/internal/coaching"
	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/pkg/events"
)

// Generator produces a recommendation for an activity.
type Generator interface {
	Generate(ctx context.Context, activity domain.Activity) (*domain.Recommendation, error)
}

// RecommendationStore persists recommendations keyed by activity.
type RecommendationStore interface {
	Upsert(ctx context.Context, rec domain.Recommendation) (*domain.Recommendation, error)
}

// RecommendationHandler turns activity.created events into stored recommendations.
type RecommendationHandler struct {
	generator Generator
	store     RecommendationStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecommendationHandler constructs a handler. A nil logger disables logging.
func NewRecommendationHandler(generator Generator, store RecommendationStore, logger *zap.Logger) *RecommendationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecommendationHandler{
		generator: generator,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle decodes the activity, asks the generator for a recommendation and
// upserts it. Redelivery of the same activity overwrites the earlier row.
func (h *RecommendationHandler) Handle(ctx context.Context, msg Message) error {
	if eventType := msg.Headers[broker.HeaderEventType]; eventType != "" && eventType != events.EventTypeActivityCreated {
		recordSkipped(eventType)
		return nil
	}

	var evt events.ActivityEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		recordStageFailure("decode")
		return Permanent(fmt.Errorf("decode activity event: %w", err))
	}
	activity, err := broker.ActivityFromEvent(evt)
	if err != nil {
		recordStageFailure("decode")
		return Permanent(fmt.Errorf("invalid activity event: %w", err))
	}

	rec, err := h.generator.Generate(ctx, activity)
	if err != nil {
		var (
			parseErr *coaching.ParseError
			gwErr    *ai.GatewayError
		)
		switch {
		case errors.As(err, &parseErr):
			recordStageFailure("parse")
		case errors.As(err, &gwErr) && !gwErr.Transient:
			// Rejected credentials or request; another attempt gets the same answer.
			recordStageFailure("ai")
			return Permanent(err)
		default:
			recordStageFailure("ai")
		}
		return err
	}

	now := h.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored, err := h.store.Upsert(ctx, *rec)
	if err != nil {
		recordStageFailure("persist")
		return fmt.Errorf("store recommendation for activity %s: %w", activity.ID, err)
	}

	h.logger.Info("recommendation stored",
		zap.String("activity_id", activity.ID),
		zap.String("recommendation_id", stored.ID),
		zap.Int("attempt", msg.Attempt),
	)
	return nil
}
