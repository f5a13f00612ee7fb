// Package events defines shared cross-service event payloads.
package events

import "time"

// EventTypeActivityCreated is carried in the event_type header of activity messages.
const EventTypeActivityCreated = "activity.created"

// ActivityEvent is the message emitted when a new activity is accepted. It
// carries the same field set as the REST representation of an activity.
type ActivityEvent struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	ActivityType      string         `json:"activityType"`
	Duration          int            `json:"duration"`
	CaloriesBurned    int            `json:"caloriesBurned"`
	StartTime         time.Time      `json:"startTime"`
	AdditionalMetrics map[string]any `json:"additionalMetrics,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}
