package background

import (
	"context"
	"log/slog"
	"time"
)

// RateLimitPruner deletes limiter rows untouched since the cutoff. The
// Redis backend expires keys itself, so only the Postgres store needs one.
type RateLimitPruner interface {
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditPruner deletes audit entries created before the cutoff.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically prunes stale rate limit rows and aged audit
// entries from the database
type CleanupManager struct {
	rateLimits     RateLimitPruner
	audits         AuditPruner
	logger         *slog.Logger
	interval       time.Duration
	auditRetention time.Duration
	stopCh         chan struct{}
}

// NewCleanupManager creates a new cleanup manager. rateLimits may be nil
// when the Redis limiter backend is configured.
func NewCleanupManager(
	rateLimits RateLimitPruner,
	audits AuditPruner,
	logger *slog.Logger,
	interval time.Duration,
	auditRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		rateLimits:     rateLimits,
		audits:         audits,
		logger:         logger,
		interval:       interval,
		auditRetention: auditRetention,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.rateLimits != nil {
		// Rows past every window and lockout carry no state worth keeping.
		cutoff := time.Now().Add(-24 * time.Hour)
		rowsDeleted, err := cm.rateLimits.DeleteStale(cleanupCtx, cutoff)
		if err != nil {
			cm.logger.Error("failed to prune rate limit entries", slog.Any("error", err))
		} else if rowsDeleted > 0 {
			cm.logger.Info("rate limit entries pruned", slog.Int64("rows_deleted", rowsDeleted))
		}
	}

	if cm.audits != nil && cm.auditRetention > 0 {
		cutoff := time.Now().Add(-cm.auditRetention)
		rowsDeleted, err := cm.audits.DeleteOlderThan(cleanupCtx, cutoff)
		if err != nil {
			cm.logger.Error("failed to prune audit entries", slog.Any("error", err))
		} else if rowsDeleted > 0 {
			cm.logger.Info("audit entries pruned", slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
