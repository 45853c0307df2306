package auth

import (
	"net/http"
	"strings"

	"github.com/forkline/forkline-auth/internal/models"
)

// loginPath returns the browser login page for a role.
func loginPath(role models.Role) string {
	if role == models.RoleAdmin {
		return "/admin/login"
	}
	return "/staff/login"
}

// RequireSession guards protected routes for a role. Unauthorized browser
// navigations are redirected to the role's login page; API-shaped requests
// get a 401 JSON body instead.
func RequireSession(validator *SessionValidator, role models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validator.Authorized(r.Context(), r, role) {
				if wantsJSON(r) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					w.Write([]byte(`{"error":"unauthorized","message":"Authentication required"}`))
					return
				}
				http.Redirect(w, r, loginPath(role), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// wantsJSON classifies a request as API-shaped: an explicit JSON Accept
// header or an XHR marker. Plain browser navigations send neither.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
