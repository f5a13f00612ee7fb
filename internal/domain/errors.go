package domain

import "errors"

var (
	// ErrValidation marks malformed ingestion requests.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidUser is returned when the user service rejects the user id.
	ErrInvalidUser = errors.New("invalid user")
	// ErrUserNotFound is returned when the user service does not know the user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserServiceUnavailable is returned when the user service cannot be reached.
	ErrUserServiceUnavailable = errors.New("user service unavailable")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrRecommendationNotFound is returned when no recommendation exists for an activity.
	ErrRecommendationNotFound = errors.New("recommendation not found")
)
