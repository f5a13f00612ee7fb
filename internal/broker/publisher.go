package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/pkg/events"
)

// Header keys set on every activity message.
const (
	HeaderEventType   = "event_type"
	HeaderContentType = "content_type"
)

// MessageWriter is the subset of Producer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// Config names the queue activity events are published to.
type Config struct {
	Topic string
}

// ActivityPublisher serialises activities onto the configured topic.
type ActivityPublisher struct {
	writer MessageWriter
	topic  string
}

// NewActivityPublisher constructs an ActivityPublisher.
func NewActivityPublisher(writer MessageWriter, cfg Config) *ActivityPublisher {
	return &ActivityPublisher{writer: writer, topic: cfg.Topic}
}

// PublishActivity writes one message keyed by activity id, so redeliveries
// and replays of the same activity land on the same partition.
func (p *ActivityPublisher) PublishActivity(ctx context.Context, activity domain.Activity) error {
	payload, err := json.Marshal(ActivityEventFrom(activity))
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(activity.ID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(events.EventTypeActivityCreated)},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish activity %s to %s: %w", activity.ID, p.topic, err)
	}
	return nil
}

// ActivityEventFrom maps a domain activity onto its wire representation.
func ActivityEventFrom(a domain.Activity) events.ActivityEvent {
	return events.ActivityEvent{
		ID:                a.ID,
		UserID:            a.UserID,
		ActivityType:      string(a.ActivityType),
		Duration:          a.Duration,
		CaloriesBurned:    a.CaloriesBurned,
		StartTime:         a.StartTime,
		AdditionalMetrics: a.AdditionalMetrics,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// ActivityFromEvent maps a decoded event back onto the domain type.
func ActivityFromEvent(evt events.ActivityEvent) (domain.Activity, error) {
	if evt.ID == "" {
		return domain.Activity{}, fmt.Errorf("activity event missing id")
	}
	if evt.UserID == "" {
		return domain.Activity{}, fmt.Errorf("activity event %s missing userId", evt.ID)
	}
	activityType, err := domain.ParseActivityType(evt.ActivityType)
	if err != nil {
		return domain.Activity{}, err
	}
	return domain.Activity{
		ID:                evt.ID,
		UserID:            evt.UserID,
		ActivityType:      activityType,
		Duration:          evt.Duration,
		CaloriesBurned:    evt.CaloriesBurned,
		StartTime:         evt.StartTime,
		AdditionalMetrics: evt.AdditionalMetrics,
		CreatedAt:         evt.CreatedAt,
		UpdatedAt:         evt.UpdatedAt,
	}, nil
}
