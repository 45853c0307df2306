package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/forkline/forkline-auth/internal/database"
	"github.com/forkline/forkline-auth/internal/models"
	"github.com/jackc/pgx/v5"
)

// RateLimitPolicy carries the limiter's fixed-window parameters.
type RateLimitPolicy struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
}

// RateLimitRepository is the Postgres-backed limiter store. Each key is a
// single row; the check runs inside a transaction with SELECT ... FOR
// UPDATE so two concurrent attempts cannot both reset the counter.
type RateLimitRepository struct {
	db *database.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// CheckAndIncrement advances the key's state machine by one attempt and
// reports whether the attempt is admitted.
func (r *RateLimitRepository) CheckAndIncrement(ctx context.Context, key string, policy RateLimitPolicy) (models.RateLimitDecision, error) {
	var decision models.RateLimitDecision

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		now := time.Now()

		var entry models.RateLimitEntry
		err := tx.QueryRow(ctx, `
			SELECT key, attempt_count, window_start_at, locked_until
			FROM rate_limit_entries
			WHERE key = $1
			FOR UPDATE
		`, key).Scan(&entry.Key, &entry.AttemptCount, &entry.WindowStartAt, &entry.LockedUntil)

		if errors.Is(err, pgx.ErrNoRows) {
			decision = models.RateLimitDecision{Allowed: true}
			_, err = tx.Exec(ctx, `
				INSERT INTO rate_limit_entries (key, attempt_count, window_start_at, updated_at)
				VALUES ($1, 1, $2, $2)
			`, key, now)
			return err
		}
		if err != nil {
			return err
		}

		// Still locked: report remaining time, never extend the lockout.
		if entry.Locked(now) {
			decision = models.RateLimitDecision{
				Allowed:    false,
				RetryAfter: entry.LockedUntil.Sub(now),
			}
			return nil
		}

		// Lockout elapsed or window expired: this attempt starts a fresh window.
		if entry.LockedUntil != nil || entry.WindowExpired(now, policy.Window) {
			decision = models.RateLimitDecision{Allowed: true}
			_, err = tx.Exec(ctx, `
				UPDATE rate_limit_entries
				SET attempt_count = 1, window_start_at = $2, locked_until = NULL, updated_at = $2
				WHERE key = $1
			`, key, now)
			return err
		}

		count := entry.AttemptCount + 1
		if count > policy.MaxAttempts {
			lockedUntil := now.Add(policy.LockoutDuration)
			decision = models.RateLimitDecision{
				Allowed:    false,
				RetryAfter: policy.LockoutDuration,
			}
			_, err = tx.Exec(ctx, `
				UPDATE rate_limit_entries
				SET attempt_count = $2, locked_until = $3, updated_at = $4
				WHERE key = $1
			`, key, count, lockedUntil, now)
			return err
		}

		decision = models.RateLimitDecision{Allowed: true}
		_, err = tx.Exec(ctx, `
			UPDATE rate_limit_entries
			SET attempt_count = $2, updated_at = $3
			WHERE key = $1
		`, key, count, now)
		return err
	})
	if err != nil {
		return models.RateLimitDecision{}, database.MapPostgresError(err)
	}

	return decision, nil
}

// Clear resets a key's state. Called after a successful authentication so
// a legitimate user is not penalized for earlier failures.
func (r *RateLimitRepository) Clear(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM rate_limit_entries WHERE key = $1`, key)
	return database.MapPostgresError(err)
}

// DeleteStale prunes entries untouched since the cutoff. Stale rows carry
// no correctness weight (expiry is evaluated lazily); this just bounds
// table growth.
func (r *RateLimitRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM rate_limit_entries WHERE updated_at < $1`, olderThan)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
