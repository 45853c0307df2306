package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/models"
)

// CredentialStore is the per-role credential record persistence the auth
// service depends on. Injected so tests can substitute an in-memory fake.
type CredentialStore interface {
	GetByRole(ctx context.Context, role models.Role) (*models.Credential, error)
	UpdateSecret(ctx context.Context, role models.Role, newHash string) (int64, error)
	BumpSessionVersion(ctx context.Context, role models.Role) (int64, error)
	Seed(ctx context.Context, role models.Role, username *string, secretHash string) error
}

// RequestMeta carries the client attribution recorded with every audit entry.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// Session is the outcome of a successful login or secret change: a freshly
// minted token and its expiry, ready to be set as a cookie.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService handles the login, secret-change, and revocation flows.
type AuthService struct {
	creds        CredentialStore
	limiter      *RateLimitService
	audit        *AuditService
	timing       *auth.TimingDelay
	serverSecret string
	sessionTTL   time.Duration
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	creds CredentialStore,
	limiter *RateLimitService,
	audit *AuditService,
	timing *auth.TimingDelay,
	serverSecret string,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		creds:        creds,
		limiter:      limiter,
		audit:        audit,
		timing:       timing,
		serverSecret: serverSecret,
		sessionTTL:   sessionTTL,
		logger:       logger,
	}
}

// LoginAdmin authenticates the back-office admin with username + password.
func (s *AuthService) LoginAdmin(ctx context.Context, username, password string, meta RequestMeta) (*Session, error) {
	return s.login(ctx, models.RoleAdmin, ScopeAdminLogin, meta, func(cred *models.Credential) bool {
		if cred.Username == nil {
			return false
		}
		usernameOK := subtle.ConstantTimeCompare([]byte(*cred.Username), []byte(username)) == 1
		secretOK := auth.VerifySecret(cred.SecretHash, password)
		return usernameOK && secretOK
	})
}

// LoginStaff authenticates the floor-staff terminal with its PIN.
func (s *AuthService) LoginStaff(ctx context.Context, pin string, meta RequestMeta) (*Session, error) {
	return s.login(ctx, models.RoleStaff, ScopeStaffLogin, meta, func(cred *models.Credential) bool {
		return auth.VerifySecret(cred.SecretHash, pin)
	})
}

// login runs the shared pipeline: rate limiter, credential verification,
// token mint. All credential failures collapse into ErrUnauthorized; the
// specific reason lands only in the audit trail.
func (s *AuthService) login(ctx context.Context, role models.Role, scope string, meta RequestMeta, verify func(*models.Credential) bool) (*Session, error) {
	start := time.Now()

	decision, err := s.limiter.CheckAndIncrement(ctx, scope, meta.ClientIP)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !decision.Allowed {
		s.recordAudit(ctx, role, meta, models.AuditActionLoginLimited, models.AuditMetadata{
			"retry_after_seconds": int(decision.RetryAfter.Seconds()),
		})
		return nil, &models.RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	cred, err := s.creds.GetByRole(ctx, role)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// No credentials configured yet: fail exactly like a wrong secret.
			s.recordAudit(ctx, role, meta, models.AuditActionLoginFail, models.AuditMetadata{
				"reason": "no-credentials-configured",
			})
			s.timing.WaitFrom(start, false)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to read credential record", slog.String("role", string(role)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !verify(cred) {
		s.recordAudit(ctx, role, meta, models.AuditActionLoginFail, models.AuditMetadata{
			"reason": "invalid-credentials",
		})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	token, err := auth.Mint(cred.SessionVersion, s.sessionTTL, s.serverSecret)
	if err != nil {
		s.logger.Error("failed to mint session token", slog.String("role", string(role)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.limiter.Clear(ctx, scope, meta.ClientIP)
	s.recordAudit(ctx, role, meta, models.AuditActionLoginOK, nil)
	s.logger.Info("login succeeded", slog.String("role", string(role)))

	return &Session{Token: token, ExpiresAt: time.Now().Add(s.sessionTTL)}, nil
}

// Logout records the logout; the handler clears the cookie. Stateless
// tokens mean there is nothing server-side to tear down for one session.
func (s *AuthService) Logout(ctx context.Context, role models.Role, meta RequestMeta) {
	s.recordAudit(ctx, role, meta, models.AuditActionLogout, nil)
}

// ChangeSecret verifies the current secret, stores the new hash, and bumps
// the session version in the same update, killing every session minted
// under the old secret. The acting session gets a fresh token at the new
// version so the caller is not logged out by their own change.
func (s *AuthService) ChangeSecret(ctx context.Context, role models.Role, currentSecret, newSecret string, meta RequestMeta) (*Session, error) {
	if err := validateNewSecret(role, newSecret); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, err)
	}

	cred, err := s.creds.GetByRole(ctx, role)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to read credential record", slog.String("role", string(role)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !auth.VerifySecret(cred.SecretHash, currentSecret) {
		s.recordAudit(ctx, role, meta, models.AuditActionLoginFail, models.AuditMetadata{
			"reason": "secret-change-wrong-current",
		})
		return nil, models.ErrUnauthorized
	}

	newHash, err := auth.HashSecret(newSecret)
	if err != nil {
		s.logger.Error("failed to hash new secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newVersion, err := s.creds.UpdateSecret(ctx, role, newHash)
	if err != nil {
		s.logger.Error("failed to update credential record", slog.String("role", string(role)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := auth.Mint(newVersion, s.sessionTTL, s.serverSecret)
	if err != nil {
		// The change itself is durable; only the re-issue failed. The
		// caller will have to log in again.
		s.logger.Error("failed to mint replacement token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	action := models.AuditActionPasswordChanged
	if role == models.RoleStaff {
		action = models.AuditActionPinChanged
	}
	s.recordAudit(ctx, role, meta, action, models.AuditMetadata{
		"session_version": newVersion,
	})
	s.logger.Info("credential changed", slog.String("role", string(role)), slog.Int64("session_version", newVersion))

	return &Session{Token: token, ExpiresAt: time.Now().Add(s.sessionTTL)}, nil
}

// RevokeAll bumps the role's session version, invalidating every
// outstanding token in one step. Failure propagates as a hard error:
// a silently failed revocation would leave compromised sessions alive.
func (s *AuthService) RevokeAll(ctx context.Context, role models.Role, meta RequestMeta) error {
	newVersion, err := s.creds.BumpSessionVersion(ctx, role)
	if err != nil {
		s.logger.Error("session revocation failed", slog.String("role", string(role)), slog.Any("error", err))
		return fmt.Errorf("%w: %s", models.ErrRevocationFailed, role)
	}

	s.recordAudit(ctx, role, meta, models.AuditActionSessionsRevoked, models.AuditMetadata{
		"session_version": newVersion,
	})
	s.logger.Info("all sessions revoked", slog.String("role", string(role)), slog.Int64("session_version", newVersion))

	return nil
}

// SeedCredentials bootstraps credential records from configuration on
// first start. Existing records are never overwritten.
func (s *AuthService) SeedCredentials(ctx context.Context, adminUsername, adminPassword, staffPIN string) error {
	if adminUsername != "" && adminPassword != "" {
		hash, err := auth.HashSecret(adminPassword)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		if err := s.creds.Seed(ctx, models.RoleAdmin, &adminUsername, hash); err != nil {
			return fmt.Errorf("seed admin credential: %w", err)
		}
	}

	if staffPIN != "" {
		hash, err := auth.HashSecret(staffPIN)
		if err != nil {
			return fmt.Errorf("hash staff pin: %w", err)
		}
		if err := s.creds.Seed(ctx, models.RoleStaff, nil, hash); err != nil {
			return fmt.Errorf("seed staff credential: %w", err)
		}
	}

	return nil
}

func (s *AuthService) recordAudit(ctx context.Context, role models.Role, meta RequestMeta, action string, md models.AuditMetadata) {
	s.audit.Record(ctx, &models.AuditEntry{
		ActorRole: role,
		IPAddress: meta.ClientIP,
		UserAgent: meta.UserAgent,
		Action:    action,
		Metadata:  md,
	})
}

// validateNewSecret applies the per-role secret policy: passwords need
// length, PINs need 4-8 digits.
func validateNewSecret(role models.Role, secret string) error {
	if role == models.RoleStaff {
		if len(secret) < 4 || len(secret) > 8 {
			return errors.New("pin must be 4 to 8 digits")
		}
		for _, r := range secret {
			if !unicode.IsDigit(r) {
				return errors.New("pin must contain only digits")
			}
		}
		return nil
	}

	if len(secret) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(secret) > 128 {
		return errors.New("password must be at most 128 characters")
	}
	if strings.TrimSpace(secret) != secret {
		return errors.New("password cannot begin or end with whitespace")
	}
	return nil
}
