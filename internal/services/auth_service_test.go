package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/models"
)

const testServerSecret = "unit-test-server-secret-0123456789"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthService(t *testing.T, creds CredentialStore, limitStore RateLimitStore, auditStore *MemoryAuditStore) *AuthService {
	t.Helper()

	logger := discardLogger()
	limiter := NewRateLimitService(limitStore, RateLimitConfig{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		LockoutDuration: 15 * time.Minute,
	}, logger)
	audit := NewAuditService(auditStore, logger)
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	return NewAuthService(creds, limiter, audit, timing, testServerSecret, 8*time.Hour, logger)
}

func seedAdmin(t *testing.T, creds *MemoryCredentialStore, username, password string) {
	t.Helper()
	hash, err := auth.HashSecret(password)
	require.NoError(t, err)
	require.NoError(t, creds.Seed(context.Background(), models.RoleAdmin, &username, hash))
}

func seedStaff(t *testing.T, creds *MemoryCredentialStore, pin string) {
	t.Helper()
	hash, err := auth.HashSecret(pin)
	require.NoError(t, err)
	require.NoError(t, creds.Seed(context.Background(), models.RoleStaff, nil, hash))
}

func TestAuthService_LoginAdmin_Success(t *testing.T) {
	creds := NewMemoryCredentialStore()
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), auditStore)
	seedAdmin(t, creds, "admin", "correct horse battery")

	session, err := svc.LoginAdmin(context.Background(), "admin", "correct horse battery", RequestMeta{ClientIP: "10.0.0.1"})

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	parsed := auth.Parse(session.Token, testServerSecret)
	assert.True(t, parsed.Valid)
	assert.Equal(t, int64(1), parsed.SessionVersion)

	assert.Equal(t, []string{models.AuditActionLoginOK}, auditStore.Actions())
}

func TestAuthService_LoginAdmin_WrongPassword(t *testing.T) {
	creds := NewMemoryCredentialStore()
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), auditStore)
	seedAdmin(t, creds, "admin", "correct horse battery")

	session, err := svc.LoginAdmin(context.Background(), "admin", "wrong", RequestMeta{ClientIP: "10.0.0.1"})

	assert.Nil(t, session)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, []string{models.AuditActionLoginFail}, auditStore.Actions())
}

func TestAuthService_LoginAdmin_WrongUsername(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})
	seedAdmin(t, creds, "admin", "correct horse battery")

	_, err := svc.LoginAdmin(context.Background(), "root", "correct horse battery", RequestMeta{ClientIP: "10.0.0.1"})

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_LoginAdmin_NoCredentialsConfigured(t *testing.T) {
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, NewMemoryCredentialStore(), NewMemoryRateLimitStore(), auditStore)

	session, err := svc.LoginAdmin(context.Background(), "admin", "anything", RequestMeta{ClientIP: "10.0.0.1"})

	// Indistinguishable from a wrong secret to the caller.
	assert.Nil(t, session)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, []string{models.AuditActionLoginFail}, auditStore.Actions())
}

func TestAuthService_LoginStaff_Success(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})
	seedStaff(t, creds, "4912")

	session, err := svc.LoginStaff(context.Background(), "4912", RequestMeta{ClientIP: "10.0.0.2"})

	require.NoError(t, err)
	assert.True(t, auth.Parse(session.Token, testServerSecret).Valid)
}

func TestAuthService_Login_RateLimited(t *testing.T) {
	creds := NewMemoryCredentialStore()
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), auditStore)
	seedStaff(t, creds, "4912")

	meta := RequestMeta{ClientIP: "10.0.0.3"}
	for i := 0; i < 5; i++ {
		_, err := svc.LoginStaff(context.Background(), "0000", meta)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}

	// Sixth attempt trips the lockout even with the right PIN.
	_, err := svc.LoginStaff(context.Background(), "4912", meta)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)

	var limited *models.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))

	actions := auditStore.Actions()
	assert.Equal(t, models.AuditActionLoginLimited, actions[len(actions)-1])
}

func TestAuthService_Login_SuccessClearsLimiter(t *testing.T) {
	creds := NewMemoryCredentialStore()
	limitStore := NewMemoryRateLimitStore()
	svc := newTestAuthService(t, creds, limitStore, &MemoryAuditStore{})
	seedStaff(t, creds, "4912")

	meta := RequestMeta{ClientIP: "10.0.0.4"}
	for i := 0; i < 3; i++ {
		_, err := svc.LoginStaff(context.Background(), "0000", meta)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}

	_, err := svc.LoginStaff(context.Background(), "4912", meta)
	require.NoError(t, err)

	assert.Nil(t, limitStore.Entry(Key(ScopeStaffLogin, meta.ClientIP)))
}

func TestAuthService_Login_ScopesAreIndependent(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})
	seedAdmin(t, creds, "admin", "correct horse battery")
	seedStaff(t, creds, "4912")

	meta := RequestMeta{ClientIP: "10.0.0.5"}
	for i := 0; i < 6; i++ {
		svc.LoginStaff(context.Background(), "0000", meta)
	}

	_, err := svc.LoginStaff(context.Background(), "4912", meta)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)

	// Same IP, admin surface: untouched.
	_, err = svc.LoginAdmin(context.Background(), "admin", "correct horse battery", meta)
	assert.NoError(t, err)
}

func TestAuthService_Login_LimiterStoreErrorFailsClosed(t *testing.T) {
	creds := NewMemoryCredentialStore()
	limitStore := NewMemoryRateLimitStore()
	limitStore.FailErr = errors.New("connection refused")
	svc := newTestAuthService(t, creds, limitStore, &MemoryAuditStore{})
	seedStaff(t, creds, "4912")

	// Default posture: a dead limiter store refuses logins rather than
	// admitting unmetered attempts.
	_, err := svc.LoginStaff(context.Background(), "4912", RequestMeta{ClientIP: "10.0.0.6"})
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAuthService_Login_LimiterStoreErrorFailOpenOptIn(t *testing.T) {
	creds := NewMemoryCredentialStore()
	limitStore := NewMemoryRateLimitStore()
	limitStore.FailErr = errors.New("connection refused")
	seedStaff(t, creds, "4912")

	logger := discardLogger()
	limiter := NewRateLimitService(limitStore, RateLimitConfig{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		LockoutDuration: 15 * time.Minute,
		FailOpen:        true,
	}, logger)
	audit := NewAuditService(&MemoryAuditStore{}, logger)
	timing := auth.NewTimingDelay(auth.TimingConfig{})
	svc := NewAuthService(creds, limiter, audit, timing, testServerSecret, 8*time.Hour, logger)

	_, err := svc.LoginStaff(context.Background(), "4912", RequestMeta{ClientIP: "10.0.0.6"})
	assert.NoError(t, err)
}

func TestAuthService_ChangeSecret_BumpsVersionAndReissues(t *testing.T) {
	creds := NewMemoryCredentialStore()
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), auditStore)
	seedAdmin(t, creds, "admin", "old password here")

	session, err := svc.ChangeSecret(context.Background(), models.RoleAdmin, "old password here", "new password here", RequestMeta{ClientIP: "10.0.0.7"})
	require.NoError(t, err)

	// The replacement token is minted at the bumped version.
	parsed := auth.Parse(session.Token, testServerSecret)
	require.True(t, parsed.Valid)
	assert.Equal(t, int64(2), parsed.SessionVersion)

	version, err := creds.CurrentSessionVersion(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// A token minted before the change no longer matches the stored version.
	oldToken, err := auth.Mint(1, time.Hour, testServerSecret)
	require.NoError(t, err)
	oldParsed := auth.Parse(oldToken, testServerSecret)
	assert.True(t, oldParsed.Valid)
	assert.NotEqual(t, version, oldParsed.SessionVersion)

	assert.Contains(t, auditStore.Actions(), models.AuditActionPasswordChanged)

	// Old password stops working, new one works.
	_, err = svc.LoginAdmin(context.Background(), "admin", "old password here", RequestMeta{ClientIP: "10.0.0.7"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.LoginAdmin(context.Background(), "admin", "new password here", RequestMeta{ClientIP: "10.0.0.8"})
	assert.NoError(t, err)
}

func TestAuthService_ChangeSecret_WrongCurrent(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})
	seedAdmin(t, creds, "admin", "old password here")

	_, err := svc.ChangeSecret(context.Background(), models.RoleAdmin, "wrong", "new password here", RequestMeta{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	version, _ := creds.CurrentSessionVersion(context.Background(), models.RoleAdmin)
	assert.Equal(t, int64(1), version)
}

func TestAuthService_ChangeSecret_Validation(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})
	seedAdmin(t, creds, "admin", "old password here")
	seedStaff(t, creds, "4912")

	tests := []struct {
		name      string
		role      models.Role
		newSecret string
	}{
		{"admin password too short", models.RoleAdmin, "short"},
		{"admin password leading space", models.RoleAdmin, " padded password"},
		{"staff pin too short", models.RoleStaff, "123"},
		{"staff pin too long", models.RoleStaff, "123456789"},
		{"staff pin non-digit", models.RoleStaff, "12ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := "old password here"
			if tt.role == models.RoleStaff {
				current = "4912"
			}
			_, err := svc.ChangeSecret(context.Background(), tt.role, current, tt.newSecret, RequestMeta{})
			assert.ErrorIs(t, err, models.ErrBadRequest)
		})
	}
}

func TestAuthService_ChangeSecret_StaffPinAudit(t *testing.T) {
	creds := NewMemoryCredentialStore()
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), auditStore)
	seedStaff(t, creds, "4912")

	_, err := svc.ChangeSecret(context.Background(), models.RoleStaff, "4912", "8137", RequestMeta{})
	require.NoError(t, err)
	assert.Contains(t, auditStore.Actions(), models.AuditActionPinChanged)
}

func TestAuthService_RevokeAll(t *testing.T) {
	creds := NewMemoryCredentialStore()
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), auditStore)
	seedAdmin(t, creds, "admin", "correct horse battery")

	session, err := svc.LoginAdmin(context.Background(), "admin", "correct horse battery", RequestMeta{ClientIP: "10.0.0.9"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(context.Background(), models.RoleAdmin, RequestMeta{ClientIP: "10.0.0.9"}))

	version, err := creds.CurrentSessionVersion(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// The pre-revocation token still verifies cryptographically but its
	// embedded version no longer matches.
	parsed := auth.Parse(session.Token, testServerSecret)
	assert.True(t, parsed.Valid)
	assert.NotEqual(t, version, parsed.SessionVersion)

	assert.Contains(t, auditStore.Actions(), models.AuditActionSessionsRevoked)
}

func TestAuthService_RevokeAll_StoreFailureIsHardError(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})
	seedAdmin(t, creds, "admin", "correct horse battery")
	creds.FailErr = errors.New("connection reset")

	err := svc.RevokeAll(context.Background(), models.RoleAdmin, RequestMeta{})
	assert.ErrorIs(t, err, models.ErrRevocationFailed)
}

func TestAuthService_SeedCredentials(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})

	require.NoError(t, svc.SeedCredentials(context.Background(), "admin", "initial password", "4912"))

	_, err := svc.LoginAdmin(context.Background(), "admin", "initial password", RequestMeta{ClientIP: "10.0.1.1"})
	assert.NoError(t, err)
	_, err = svc.LoginStaff(context.Background(), "4912", RequestMeta{ClientIP: "10.0.1.2"})
	assert.NoError(t, err)

	// Re-seeding never overwrites an existing record.
	require.NoError(t, svc.SeedCredentials(context.Background(), "admin", "changed password", "0000"))
	_, err = svc.LoginAdmin(context.Background(), "admin", "initial password", RequestMeta{ClientIP: "10.0.1.3"})
	assert.NoError(t, err)
}

func TestAuthService_SeedCredentials_EmptyConfigSkips(t *testing.T) {
	creds := NewMemoryCredentialStore()
	svc := newTestAuthService(t, creds, NewMemoryRateLimitStore(), &MemoryAuditStore{})

	require.NoError(t, svc.SeedCredentials(context.Background(), "", "", ""))

	_, err := creds.GetByRole(context.Background(), models.RoleAdmin)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = creds.GetByRole(context.Background(), models.RoleStaff)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAuthService_Logout_RecordsAudit(t *testing.T) {
	auditStore := &MemoryAuditStore{}
	svc := newTestAuthService(t, NewMemoryCredentialStore(), NewMemoryRateLimitStore(), auditStore)

	svc.Logout(context.Background(), models.RoleStaff, RequestMeta{ClientIP: "10.0.0.10"})

	require.Len(t, auditStore.Entries, 1)
	assert.Equal(t, models.AuditActionLogout, auditStore.Entries[0].Action)
	assert.Equal(t, models.RoleStaff, auditStore.Entries[0].ActorRole)
}
