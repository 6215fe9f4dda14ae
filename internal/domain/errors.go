package domain

import "errors"

// Capability-level failures. Providers wrap backend errors onto these so
// callers never see backend-specific error types.
var (
	ErrNotConfigured      = errors.New("model not configured")
	ErrEmptyResponse      = errors.New("empty response from backend")
	ErrBackend            = errors.New("backend request failed")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)
