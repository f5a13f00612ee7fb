package domain

import "time"

// Recommendation is the AI-derived coaching feedback for a single activity.
// At most one exists per ActivityID.
type Recommendation struct {
	ID             string
	ActivityID     string
	UserID         string
	ActivityType   ActivityType
	Recommendation string
	Improvements   []string
	Suggestions    []string
	Safety         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
