package service

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the ad-hoc check budget is
// exhausted. Callers are rejected immediately rather than queued.
var ErrRateLimited = errors.New("too many checks in flight, try again later")

// ErrRefreshRunning is returned when a forced refresh collides with a
// cycle already in progress.
var ErrRefreshRunning = errors.New("a refresh cycle is already running")

// ErrRefreshNotStarted is returned by refresh operations before any
// fleet has been registered.
var ErrRefreshNotStarted = errors.New("no fleet registered, start a precheck first")

// ErrReceiverNotFound is returned for history lookups of receivers the
// registry has never recorded.
var ErrReceiverNotFound = errors.New("receiver not found")

// ValidationError marks a request rejected before any network traffic.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
