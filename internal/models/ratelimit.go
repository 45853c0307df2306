package models

import "time"

// RateLimitEntry is the per-key attempt counter shared across instances.
// A key is "<scope>:<clientIP>" (e.g. "admin-login:203.0.113.9") so that
// exhausting one endpoint's budget never affects another's.
type RateLimitEntry struct {
	Key           string     `db:"key"`
	AttemptCount  int        `db:"attempt_count"`
	WindowStartAt time.Time  `db:"window_start_at"`
	LockedUntil   *time.Time `db:"locked_until"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Locked reports whether the entry is in the LOCKED state at now.
func (e *RateLimitEntry) Locked(now time.Time) bool {
	return e.LockedUntil != nil && now.Before(*e.LockedUntil)
}

// WindowExpired reports whether the counting window has elapsed at now.
func (e *RateLimitEntry) WindowExpired(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStartAt) >= window
}

// RateLimitDecision is the outcome of a CheckAndIncrement call.
type RateLimitDecision struct {
	Allowed    bool
	RetryAfter time.Duration // > 0 only when Allowed is false
}
