package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/handlers"
	"github.com/forkline/forkline-auth/internal/models"
	"github.com/forkline/forkline-auth/internal/services"
	pkghttp "github.com/forkline/forkline-auth/pkg/http"
)

func newTestAuthHandler(service handlers.AuthServiceInterface) *handlers.AuthHandler {
	return handlers.NewAuthHandler(
		service,
		auth.NewCSRFTokenManager(),
		auth.CookieConfig{SessionTTL: 8 * time.Hour},
		&pkghttp.IPConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAdminLogin_Success(t *testing.T) {
	expiry := time.Now().Add(8 * time.Hour)
	mockAuth := &handlers.MockAuthService{
		LoginAdminFunc: func(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error) {
			assert.Equal(t, "admin", username)
			assert.Equal(t, "hunter22hunter22", password)
			return &services.Session{Token: "v2:1:123:abc", ExpiresAt: expiry}, nil
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/login", handlers.AdminLoginRequest{
		Username: "admin",
		Password: "hunter22hunter22",
	})

	w := httptest.NewRecorder()
	handler.AdminLogin(w, req)

	var resp handlers.SessionResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.WithinDuration(t, expiry, resp.ExpiresAt, time.Second)
	assert.NotEmpty(t, resp.CSRFToken)

	cookie := sessionCookie(t, w, "admin_session")
	require.NotNil(t, cookie)
	assert.Equal(t, "v2:1:123:abc", cookie.Value)
	assert.Equal(t, "/admin", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestAdminLogin_InvalidCredentials(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginAdminFunc: func(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error) {
			return nil, models.ErrUnauthorized
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/login", handlers.AdminLoginRequest{
		Username: "admin",
		Password: "wrong",
	})

	w := httptest.NewRecorder()
	handler.AdminLogin(w, req)

	var resp pkghttp.ErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.Equal(t, "unauthorized", resp.Error)
	assert.Nil(t, sessionCookie(t, w, "admin_session"))
}

func TestAdminLogin_RateLimited(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginAdminFunc: func(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error) {
			return nil, &models.RateLimitedError{RetryAfter: 15 * time.Minute}
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/login", handlers.AdminLoginRequest{
		Username: "admin",
		Password: "whatever1",
	})

	w := httptest.NewRecorder()
	handler.AdminLogin(w, req)

	var resp pkghttp.ErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusTooManyRequests, &resp)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
	assert.Equal(t, 900, resp.RetryAfter)
}

func TestAdminLogin_ValidationFailure(t *testing.T) {
	handler := newTestAuthHandler(&handlers.MockAuthService{})
	req := handlers.NewTestRequest(t, "POST", "/admin/login", handlers.AdminLoginRequest{
		Username: "admin",
	})

	w := httptest.NewRecorder()
	handler.AdminLogin(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminLogin_MalformedBody(t *testing.T) {
	handler := newTestAuthHandler(&handlers.MockAuthService{})
	req := httptest.NewRequest("POST", "/admin/login", nil)

	w := httptest.NewRecorder()
	handler.AdminLogin(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminLogin_InternalErrorCarriesRequestRef(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginAdminFunc: func(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error) {
			return nil, models.ErrInternalServer
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/login", handlers.AdminLoginRequest{
		Username: "admin",
		Password: "whatever1",
	})

	w := httptest.NewRecorder()
	handler.AdminLogin(w, req)

	var resp pkghttp.ErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusInternalServerError, &resp)
	assert.NotEmpty(t, resp.RequestRef)
	// Nothing about the underlying failure leaks.
	assert.Equal(t, "Internal server error", resp.Message)
}

func TestStaffLogin_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginStaffFunc: func(ctx context.Context, pin string, meta services.RequestMeta) (*services.Session, error) {
			assert.Equal(t, "4912", pin)
			return &services.Session{Token: "v2:3:456:def", ExpiresAt: time.Now().Add(8 * time.Hour)}, nil
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/staff/login", handlers.StaffLoginRequest{PIN: "4912"})

	w := httptest.NewRecorder()
	handler.StaffLogin(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w, "staff_session")
	require.NotNil(t, cookie)
	assert.Equal(t, "/staff", cookie.Path)
}

func TestLogout_ClearsCookie(t *testing.T) {
	var loggedOut models.Role
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, role models.Role, meta services.RequestMeta) {
			loggedOut = role
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/logout", nil)

	w := httptest.NewRecorder()
	handler.AdminLogout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.RoleAdmin, loggedOut)

	cookie := sessionCookie(t, w, "admin_session")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestChangeAdminPassword_SetsFreshCookie(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		ChangeSecretFunc: func(ctx context.Context, role models.Role, currentSecret, newSecret string, meta services.RequestMeta) (*services.Session, error) {
			assert.Equal(t, models.RoleAdmin, role)
			return &services.Session{Token: "v2:2:789:fff", ExpiresAt: time.Now().Add(8 * time.Hour)}, nil
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "PUT", "/admin/password", handlers.ChangePasswordRequest{
		CurrentPassword: "old password",
		NewPassword:     "new password!",
	})

	w := httptest.NewRecorder()
	handler.ChangeAdminPassword(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w, "admin_session")
	require.NotNil(t, cookie)
	assert.Equal(t, "v2:2:789:fff", cookie.Value)
}

func TestChangeAdminPassword_RejectsShortPassword(t *testing.T) {
	handler := newTestAuthHandler(&handlers.MockAuthService{})
	req := handlers.NewTestRequest(t, "PUT", "/admin/password", handlers.ChangePasswordRequest{
		CurrentPassword: "old password",
		NewPassword:     "short",
	})

	w := httptest.NewRecorder()
	handler.ChangeAdminPassword(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeStaffPIN_NoCookieReissued(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		ChangeSecretFunc: func(ctx context.Context, role models.Role, currentSecret, newSecret string, meta services.RequestMeta) (*services.Session, error) {
			assert.Equal(t, models.RoleStaff, role)
			return &services.Session{Token: "ignored", ExpiresAt: time.Now()}, nil
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "PUT", "/staff/pin", handlers.ChangePINRequest{
		CurrentPIN: "4912",
		NewPIN:     "8137",
	})

	w := httptest.NewRecorder()
	handler.ChangeStaffPIN(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, sessionCookie(t, w, "staff_session"))
}

func TestChangeStaffPIN_RejectsNonNumeric(t *testing.T) {
	handler := newTestAuthHandler(&handlers.MockAuthService{})
	req := handlers.NewTestRequest(t, "PUT", "/staff/pin", handlers.ChangePINRequest{
		CurrentPIN: "4912",
		NewPIN:     "12ab",
	})

	w := httptest.NewRecorder()
	handler.ChangeStaffPIN(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRevokeAdminSessions_Success(t *testing.T) {
	var revoked models.Role
	mockAuth := &handlers.MockAuthService{
		RevokeAllFunc: func(ctx context.Context, role models.Role, meta services.RequestMeta) error {
			revoked = role
			return nil
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/sessions/revoke", nil)

	w := httptest.NewRecorder()
	handler.RevokeAdminSessions(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.RoleAdmin, revoked)

	// The caller's own cookie is cleared along with everyone else's.
	cookie := sessionCookie(t, w, "admin_session")
	require.NotNil(t, cookie)
	assert.Negative(t, cookie.MaxAge)
}

func TestRevokeStaffSessions_FailureIsNeverSilent(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RevokeAllFunc: func(ctx context.Context, role models.Role, meta services.RequestMeta) error {
			return errors.New("write failed")
		},
	}

	handler := newTestAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/admin/staff-sessions/revoke", nil)

	w := httptest.NewRecorder()
	handler.RevokeStaffSessions(w, req)

	var resp pkghttp.ErrorResponse
	handlers.AssertJSONResponse(t, w, http.StatusInternalServerError, &resp)
	assert.NotEmpty(t, resp.RequestRef)
}

func TestSessionProbe_ReturnsCSRFToken(t *testing.T) {
	handler := newTestAuthHandler(&handlers.MockAuthService{})
	req := handlers.NewTestRequest(t, "GET", "/admin/session", nil)

	w := httptest.NewRecorder()
	handler.AdminSession(w, req)

	var resp handlers.SessionStatusResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "admin", resp.Role)
	assert.NotEmpty(t, resp.CSRFToken)
}
