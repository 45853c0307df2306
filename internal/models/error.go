package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication and abuse-control errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMissingSecret     = errors.New("server secret is not configured")
	ErrRevocationFailed  = errors.New("session revocation failed")
)

// RateLimitedError carries the retry hint for a rejected attempt. It
// matches ErrRateLimitExceeded under errors.Is.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
