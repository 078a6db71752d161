// Package common defines shared constants and sentinel errors used across
// the sync engine and the reference server. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Sync-level errors.
	ErrVersionConflict = errors.New("version conflict")
	ErrAmbiguousMerge  = errors.New("ambiguous merge")
	ErrQueueParked     = errors.New("queue item parked")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors (non-retryable by the queue).
	ErrValidation    = errors.New("validation error")
	ErrUnknownEntity = errors.New("unknown entity type")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
