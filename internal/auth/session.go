package auth

import (
	"context"
	"net/http"

	"github.com/forkline/forkline-auth/internal/models"
)

// VersionReader fetches a role's current session version from the
// credential store. The validator re-reads it on every check so a
// revocation takes effect on the very next request.
type VersionReader interface {
	CurrentSessionVersion(ctx context.Context, role models.Role) (int64, error)
}

// SessionValidator decides whether an inbound request carries a currently
// authorized session for a role.
type SessionValidator struct {
	serverSecret string
	versions     VersionReader
}

// NewSessionValidator creates a SessionValidator.
func NewSessionValidator(serverSecret string, versions VersionReader) *SessionValidator {
	return &SessionValidator{
		serverSecret: serverSecret,
		versions:     versions,
	}
}

// Authorized reports whether the request bears a valid session cookie for
// the role. Every failure mode (missing cookie, malformed token, bad
// signature, expiry, version mismatch, store error) yields the same
// false result; callers never learn which check failed.
func (v *SessionValidator) Authorized(ctx context.Context, r *http.Request, role models.Role) bool {
	token := SessionTokenFromRequest(r, role)
	if token == "" {
		return false
	}

	parsed := Parse(token, v.serverSecret)
	if !parsed.Valid {
		return false
	}

	current, err := v.versions.CurrentSessionVersion(ctx, role)
	if err != nil {
		return false
	}

	return parsed.SessionVersion == current
}
