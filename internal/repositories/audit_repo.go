package repositories

import (
	"context"
	"time"

	"github.com/forkline/forkline-auth/internal/database"
	"github.com/forkline/forkline-auth/internal/models"
)

// AuditRepository handles database operations for the append-only audit trail.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an audit entry. Entries are write-once; there is no
// update or per-row delete path.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (actor_role, actor_id, ip_address, user_agent, action, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ActorRole,
		entry.ActorID,
		entry.IPAddress,
		entry.UserAgent,
		entry.Action,
		entry.Metadata,
	)
	return database.MapPostgresError(err)
}

// ListRecent returns the newest entries, most recent first. Used by the
// back-office audit view.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, actor_role, actor_id, ip_address, user_agent, action, metadata, created_at
		FROM audit_entries
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		var entry models.AuditEntry
		err := rows.Scan(
			&entry.ID,
			&entry.ActorRole,
			&entry.ActorID,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Action,
			&entry.Metadata,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return entries, nil
}

// DeleteOlderThan prunes entries past the retention horizon.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM audit_entries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
