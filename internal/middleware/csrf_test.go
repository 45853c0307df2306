package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/models"
)

func csrfTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFProtection_AllowsGET(t *testing.T) {
	manager := auth.NewCSRFTokenManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := CSRFProtection(manager, models.RoleAdmin, logger)(csrfTestHandler())

	req := httptest.NewRequest("GET", "/admin/session", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCSRFProtection_RejectsMissingToken(t *testing.T) {
	manager := auth.NewCSRFTokenManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := CSRFProtection(manager, models.RoleAdmin, logger)(csrfTestHandler())

	req := httptest.NewRequest("POST", "/admin/sessions/revoke", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFProtection_AcceptsValidToken(t *testing.T) {
	manager := auth.NewCSRFTokenManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := CSRFProtection(manager, models.RoleAdmin, logger)(csrfTestHandler())

	token, err := manager.GenerateToken(models.RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/admin/sessions/revoke", nil)
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCSRFProtection_RejectsOtherRolesToken(t *testing.T) {
	manager := auth.NewCSRFTokenManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := CSRFProtection(manager, models.RoleAdmin, logger)(csrfTestHandler())

	token, err := manager.GenerateToken(models.RoleStaff)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/admin/sessions/revoke", nil)
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
