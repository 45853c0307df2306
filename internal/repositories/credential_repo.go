package repositories

import (
	"context"

	"github.com/forkline/forkline-auth/internal/database"
	"github.com/forkline/forkline-auth/internal/models"
)

// CredentialRepository handles database operations for the per-role
// credential records.
type CredentialRepository struct {
	db *database.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByRole fetches a role's credential record.
func (r *CredentialRepository) GetByRole(ctx context.Context, role models.Role) (*models.Credential, error) {
	query := `
		SELECT role, username, secret_hash, session_version, created_at, updated_at
		FROM credentials WHERE role = $1
	`

	var cred models.Credential
	err := r.db.Pool.QueryRow(ctx, query, role).Scan(
		&cred.Role,
		&cred.Username,
		&cred.SecretHash,
		&cred.SessionVersion,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cred, nil
}

// CurrentSessionVersion reads only the session version counter. The
// session validator calls this on every request; it must always hit the
// store so revocation takes effect immediately.
func (r *CredentialRepository) CurrentSessionVersion(ctx context.Context, role models.Role) (int64, error) {
	query := `SELECT session_version FROM credentials WHERE role = $1`

	var version int64
	if err := r.db.Pool.QueryRow(ctx, query, role).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

// UpdateSecret stores a new secret hash and bumps the session version in a
// single UPDATE, so every session minted under the old secret dies with
// the change. Returns the new version.
func (r *CredentialRepository) UpdateSecret(ctx context.Context, role models.Role, newHash string) (int64, error) {
	query := `
		UPDATE credentials
		SET secret_hash = $2, session_version = session_version + 1, updated_at = NOW()
		WHERE role = $1
		RETURNING session_version
	`

	var version int64
	if err := r.db.Pool.QueryRow(ctx, query, role, newHash).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

// BumpSessionVersion increments the version counter, invalidating all
// outstanding tokens for the role. Returns the new version.
func (r *CredentialRepository) BumpSessionVersion(ctx context.Context, role models.Role) (int64, error) {
	query := `
		UPDATE credentials
		SET session_version = session_version + 1, updated_at = NOW()
		WHERE role = $1
		RETURNING session_version
	`

	var version int64
	if err := r.db.Pool.QueryRow(ctx, query, role).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

// Seed inserts a credential record if none exists for the role yet.
// Used for first-start bootstrap; an existing record is left untouched.
func (r *CredentialRepository) Seed(ctx context.Context, role models.Role, username *string, secretHash string) error {
	query := `
		INSERT INTO credentials (role, username, secret_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (role) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query, role, username, secretHash)
	return database.MapPostgresError(err)
}
