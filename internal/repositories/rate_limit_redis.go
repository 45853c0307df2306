package repositories

import (
	"context"
	"fmt"

	"github.com/forkline/forkline-auth/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is the Redis-backed limiter store for deployments that
// keep hot abuse-control state out of Postgres. Semantics match
// RateLimitRepository: fixed window, lockout, no lockout extension.
//
// Layout per key: "rl:cnt:<key>" holds the window counter with the window
// as its TTL; "rl:lock:<key>" exists only while the key is locked, with
// the remaining lockout as its TTL.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter creates a RedisRateLimiter wrapping the given client.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// CheckAndIncrement advances the key's state machine by one attempt.
func (r *RedisRateLimiter) CheckAndIncrement(ctx context.Context, key string, policy RateLimitPolicy) (models.RateLimitDecision, error) {
	// Locked keys are rejected without touching the counter, so repeated
	// hits during a lockout never extend it.
	ttl, err := r.client.TTL(ctx, r.lockKey(key)).Result()
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("rate limit lock check: %w", err)
	}
	if ttl > 0 {
		return models.RateLimitDecision{Allowed: false, RetryAfter: ttl}, nil
	}

	count, err := r.client.Incr(ctx, r.countKey(key)).Result()
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		// First attempt opens the window; the TTL is the window itself.
		if err := r.client.Expire(ctx, r.countKey(key), policy.Window).Err(); err != nil {
			return models.RateLimitDecision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	if int(count) > policy.MaxAttempts {
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, r.lockKey(key), "1", policy.LockoutDuration)
		pipe.Del(ctx, r.countKey(key))
		if _, err := pipe.Exec(ctx); err != nil {
			return models.RateLimitDecision{}, fmt.Errorf("rate limit lock: %w", err)
		}
		return models.RateLimitDecision{Allowed: false, RetryAfter: policy.LockoutDuration}, nil
	}

	return models.RateLimitDecision{Allowed: true}, nil
}

// Clear resets a key's state after a successful authentication.
func (r *RedisRateLimiter) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.countKey(key), r.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("rate limit clear: %w", err)
	}
	return nil
}

func (r *RedisRateLimiter) countKey(key string) string {
	return "rl:cnt:" + key
}

func (r *RedisRateLimiter) lockKey(key string) string {
	return "rl:lock:" + key
}
