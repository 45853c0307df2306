package services

import (
	"context"
	"log/slog"

	"github.com/forkline/forkline-auth/internal/models"
)

// AuditStore persists append-only audit entries.
type AuditStore interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
}

// AuditService records security events with a dual-write pattern: an
// immediate slog record plus a database row. Persistence is best-effort;
// a failed insert is logged and swallowed so it can never abort the
// security operation that triggered it.
type AuditService struct {
	store  AuditStore
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(store AuditStore, logger *slog.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger,
	}
}

// Record sanitizes and appends one audit entry.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditEntry) {
	entry.Metadata = entry.Metadata.Sanitized()
	entry.UserAgent = models.TruncateUserAgent(entry.UserAgent)

	attrs := []slog.Attr{
		slog.String("audit_action", entry.Action),
		slog.String("actor_role", string(entry.ActorRole)),
		slog.String("ip_address", entry.IPAddress),
	}
	if entry.ActorID != nil {
		attrs = append(attrs, slog.String("actor_id", *entry.ActorID))
	}
	for key, val := range entry.Metadata {
		attrs = append(attrs, slog.Any(key, val))
	}

	level := slog.LevelInfo
	if entry.Action == models.AuditActionLoginFail || entry.Action == models.AuditActionLoginLimited {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)

	if err := s.store.Insert(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit entry",
			slog.String("audit_action", entry.Action),
			slog.Any("error", err))
	}
}
