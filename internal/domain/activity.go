package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActivityType enumerates the supported kinds of workout.
type ActivityType string

const (
	ActivityTypeWalking          ActivityType = "WALKING"
	ActivityTypeRunning          ActivityType = "RUNNING"
	ActivityTypeCycling          ActivityType = "CYCLING"
	ActivityTypeSwimming         ActivityType = "SWIMMING"
	ActivityTypeYoga             ActivityType = "YOGA"
	ActivityTypeStrengthTraining ActivityType = "STRENGTH_TRAINING"
	ActivityTypeHIIT             ActivityType = "HIIT"
	ActivityTypeDance            ActivityType = "DANCE"
	ActivityTypePilates          ActivityType = "PILATES"
	ActivityTypeMeditation       ActivityType = "MEDITATION"
	ActivityTypeCardio           ActivityType = "CARDIO"
	ActivityTypeWeightTraining   ActivityType = "WEIGHT_TRAINING"
	ActivityTypeOther            ActivityType = "OTHER"
)

var activityTypes = map[ActivityType]struct{}{
	ActivityTypeWalking:          {},
	ActivityTypeRunning:          {},
	ActivityTypeCycling:          {},
	ActivityTypeSwimming:         {},
	ActivityTypeYoga:             {},
	ActivityTypeStrengthTraining: {},
	ActivityTypeHIIT:             {},
	ActivityTypeDance:            {},
	ActivityTypePilates:          {},
	ActivityTypeMeditation:       {},
	ActivityTypeCardio:           {},
	ActivityTypeWeightTraining:   {},
	ActivityTypeOther:            {},
}

// ParseActivityType normalises user input ("running", "Strength_Training") to
// the canonical upper-case form.
func ParseActivityType(raw string) (ActivityType, error) {
	candidate := ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := activityTypes[candidate]; !ok {
		return "", fmt.Errorf("%w: unknown activity type %q", ErrValidation, raw)
	}
	return candidate, nil
}

// Valid reports whether t is one of the enumerated activity types.
func (t ActivityType) Valid() bool {
	_, ok := activityTypes[t]
	return ok
}

// Activity is a recorded fitness session. It is immutable once persisted.
type Activity struct {
	ID                string
	UserID            string
	ActivityType      ActivityType
	Duration          int
	CaloriesBurned    int
	StartTime         time.Time
	AdditionalMetrics map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartTime time.Time
	ID        string
}
