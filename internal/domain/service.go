// Package domain defines the business logic for activity tracking and coaching recommendations.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/fitcoach/internal/observability"
)

const defaultPublishTimeout = 5 * time.Second

// ActivityRepository captures persistence operations.
type ActivityRepository interface {
	Create(ctx context.Context, activity Activity) error
	Get(ctx context.Context, activityID string) (*Activity, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

// UserValidator checks user ids against the user service.
type UserValidator interface {
	ValidateUser(ctx context.Context, userID string) (bool, error)
}

// ActivityPublisher hands persisted activities to the recommendation pipeline.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, activity Activity) error
}

// ServiceOption configures optional behaviour for Service.
type ServiceOption func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublishTimeout bounds how long TrackActivity waits on the broker.
func WithPublishTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.publishTimeout = timeout
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates activity workflows.
type Service struct {
	repo           ActivityRepository
	users          UserValidator
	publisher      ActivityPublisher
	logger         *zap.Logger
	publishTimeout time.Duration
	now            func() time.Time
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, users UserValidator, publisher ActivityPublisher, opts ...ServiceOption) *Service {
	s := &Service{
		repo:           repo,
		users:          users,
		publisher:      publisher,
		logger:         zap.NewNop(),
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrackActivityInput captures the payload from the API layer.
type TrackActivityInput struct {
	UserID            string
	ActivityType      string
	Duration          int
	CaloriesBurned    int
	StartTime         time.Time
	AdditionalMetrics map[string]any
}

// Validate checks the request shape before any collaborator is called.
func (in TrackActivityInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if _, err := ParseActivityType(in.ActivityType); err != nil {
		return err
	}
	if in.Duration <= 0 {
		return fmt.Errorf("%w: duration must be > 0", ErrValidation)
	}
	if in.CaloriesBurned < 0 {
		return fmt.Errorf("%w: caloriesBurned must be >= 0", ErrValidation)
	}
	if in.StartTime.IsZero() {
		return fmt.Errorf("%w: startTime is required", ErrValidation)
	}
	for key, value := range in.AdditionalMetrics {
		switch value.(type) {
		case nil, string, bool, float64, float32, int, int64, int32:
		default:
			return fmt.Errorf("%w: additionalMetrics[%q] must be a scalar", ErrValidation, key)
		}
	}
	return nil
}

// TrackActivity validates the user, persists the activity and publishes it for
// recommendation generation. Publishing is best effort: a broker failure is
// logged and the persisted activity is still returned.
func (s *Service) TrackActivity(ctx context.Context, input TrackActivityInput) (*Activity, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	activityType, _ := ParseActivityType(input.ActivityType)

	valid, err := s.users.ValidateUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserServiceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUserServiceUnavailable, err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUser, input.UserID)
	}

	now := s.now().UTC()
	activity := Activity{
		ID:                uuid.NewString(),
		UserID:            input.UserID,
		ActivityType:      activityType,
		Duration:          input.Duration,
		CaloriesBurned:    input.CaloriesBurned,
		StartTime:         input.StartTime.UTC(),
		AdditionalMetrics: copyMetrics(input.AdditionalMetrics),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, err
	}

	s.publish(ctx, activity)
	return &activity, nil
}

func (s *Service) publish(ctx context.Context, activity Activity) {
	// The caller may disconnect right after the write; the event should still go out.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.PublishActivity(publishCtx, activity); err != nil {
		observability.RecordPublishFailure()
		s.logger.Warn("failed to publish activity, recommendation will not be generated",
			zap.String("activity_id", activity.ID),
			zap.String("user_id", activity.UserID),
			zap.Error(err),
		)
	}
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivitiesByUser fetches activities with cursor pagination.
func (s *Service) ListActivitiesByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

func copyMetrics(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
