package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forkline/forkline-auth/internal/models"
	"github.com/forkline/forkline-auth/internal/repositories"
)

// Limiter key scopes. Each login surface gets its own namespace so
// exhausting one never locks out another.
const (
	ScopeAdminLogin = "admin-login"
	ScopeStaffLogin = "staff-login"
)

// RateLimitStore is the persistence backend for limiter state. Two
// implementations exist: Postgres rows and Redis keys. In-process maps do
// not qualify; state must be shared across horizontally scaled instances.
type RateLimitStore interface {
	CheckAndIncrement(ctx context.Context, key string, policy repositories.RateLimitPolicy) (models.RateLimitDecision, error)
	Clear(ctx context.Context, key string) error
}

// RateLimitConfig holds configuration for rate limiting behavior
type RateLimitConfig struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
	// FailOpen admits attempts when the store errors instead of
	// surfacing the error to the caller.
	FailOpen bool
}

// RateLimitService bounds authentication attempts per key to blunt
// credential guessing.
type RateLimitService struct {
	store  RateLimitStore
	config RateLimitConfig
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store RateLimitStore, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Key builds the namespaced limiter key for a scope and client IP.
func Key(scope, clientIP string) string {
	return fmt.Sprintf("%s:%s", scope, clientIP)
}

// CheckAndIncrement records one attempt for the key and reports whether it
// is admitted. A store error fails closed, surfacing to the caller, unless
// FailOpen is set, in which case the attempt is admitted with a logged
// warning. Limit-exceeded decisions themselves are never affected by
// FailOpen.
func (s *RateLimitService) CheckAndIncrement(ctx context.Context, scope, clientIP string) (models.RateLimitDecision, error) {
	key := Key(scope, clientIP)

	decision, err := s.store.CheckAndIncrement(ctx, key, repositories.RateLimitPolicy{
		MaxAttempts:     s.config.MaxAttempts,
		Window:          s.config.Window,
		LockoutDuration: s.config.LockoutDuration,
	})
	if err != nil {
		if s.config.FailOpen {
			s.logger.Warn("rate limit store unavailable, failing open",
				slog.String("scope", scope),
				slog.Any("error", err))
			return models.RateLimitDecision{Allowed: true}, nil
		}
		s.logger.Error("rate limit store unavailable, refusing attempt",
			slog.String("scope", scope),
			slog.Any("error", err))
		return models.RateLimitDecision{}, fmt.Errorf("rate limit check for %s: %w", scope, err)
	}

	if !decision.Allowed {
		s.logger.Warn("login attempt rate limited",
			slog.String("scope", scope),
			slog.String("client_ip", clientIP),
			slog.Duration("retry_after", decision.RetryAfter))
	}

	return decision, nil
}

// Clear resets the key's counter after a successful authentication.
func (s *RateLimitService) Clear(ctx context.Context, scope, clientIP string) {
	if err := s.store.Clear(ctx, Key(scope, clientIP)); err != nil {
		s.logger.Error("failed to clear rate limit entry",
			slog.String("scope", scope),
			slog.Any("error", err))
	}
}
