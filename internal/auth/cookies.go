package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/forkline/forkline-auth/internal/models"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Secure     bool // HTTPS only; enabled in production
	SessionTTL time.Duration
}

// CookieName returns the role-specific session cookie name.
func CookieName(role models.Role) string {
	if role == models.RoleAdmin {
		return "admin_session"
	}
	return "staff_session"
}

// cookiePath scopes each role's cookie to its own route prefix so the
// browser never sends the admin token to staff routes or vice versa.
func cookiePath(role models.Role) string {
	if role == models.RoleAdmin {
		return "/admin"
	}
	return "/staff"
}

// SetSessionCookie sets a role's session token in an httpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, role models.Role, token string, config CookieConfig) {
	maxAge := int(config.SessionTTL.Seconds())
	cookie := &http.Cookie{
		Name:     CookieName(role),
		Value:    token,
		Path:     cookiePath(role),
		Expires:  time.Now().Add(config.SessionTTL),
		MaxAge:   maxAge,
		HttpOnly: true, // Prevents JavaScript access (XSS protection)
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie clears a role's session cookie.
func ClearSessionCookie(w http.ResponseWriter, role models.Role, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     CookieName(role),
		Value:    "",
		Path:     cookiePath(role),
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// SessionTokenFromRequest extracts a role's session token. It prefers the
// parsed cookie jar but falls back to scanning the raw Cookie header, so
// it also works for request shapes that only carry raw headers.
func SessionTokenFromRequest(r *http.Request, role models.Role) string {
	name := CookieName(role)
	if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return CookieFromHeader(r.Header.Get("Cookie"), name)
}

// CookieFromHeader extracts a named cookie value from a raw Cookie header.
// Returns "" when absent.
func CookieFromHeader(header, name string) string {
	if header == "" {
		return ""
	}
	for _, pair := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if k == name {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}
