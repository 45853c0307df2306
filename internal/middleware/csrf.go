package middleware

import (
	"log/slog"
	"net/http"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/models"
)

// CSRFProtection validates CSRF tokens on state-changing requests within a
// role's protected route group. Tokens are issued by the login and session
// probe endpoints and travel back in the X-CSRF-Token header.
func CSRFProtection(csrfManager *auth.CSRFTokenManager, role models.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			csrfToken := r.Header.Get("X-CSRF-Token")
			if csrfToken == "" {
				logger.Warn("CSRF token missing in request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("role", string(role)))
				http.Error(w, "CSRF token missing", http.StatusForbidden)
				return
			}

			if !csrfManager.ValidateToken(csrfToken, role) {
				logger.Warn("CSRF token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("role", string(role)))
				http.Error(w, "CSRF token invalid", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
