package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/models"
	"github.com/forkline/forkline-auth/internal/services"
	pkghttp "github.com/forkline/forkline-auth/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	LoginAdmin(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error)
	LoginStaff(ctx context.Context, pin string, meta services.RequestMeta) (*services.Session, error)
	Logout(ctx context.Context, role models.Role, meta services.RequestMeta)
	ChangeSecret(ctx context.Context, role models.Role, currentSecret, newSecret string, meta services.RequestMeta) (*services.Session, error)
	RevokeAll(ctx context.Context, role models.Role, meta services.RequestMeta) error
}

// AuthHandler handles the login, logout, credential-change, and revocation
// endpoints for both roles.
type AuthHandler struct {
	service      AuthServiceInterface
	csrf         *auth.CSRFTokenManager
	cookieConfig auth.CookieConfig
	ipConfig     *pkghttp.IPConfig
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	service AuthServiceInterface,
	csrf *auth.CSRFTokenManager,
	cookieConfig auth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		service:      service,
		csrf:         csrf,
		cookieConfig: cookieConfig,
		ipConfig:     ipConfig,
		logger:       logger,
	}
}

// Request DTOs

// AdminLoginRequest represents the request body for admin login
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// StaffLoginRequest represents the request body for staff login
type StaffLoginRequest struct {
	PIN string `json:"pin" validate:"required"`
}

// ChangePasswordRequest represents the request body for an admin password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// ChangePINRequest represents the request body for a staff PIN rotation
type ChangePINRequest struct {
	CurrentPIN string `json:"current_pin" validate:"required"`
	NewPIN     string `json:"new_pin" validate:"required,min=4,max=8,numeric"`
}

// SessionResponse is returned on successful login and credential change.
// The token itself travels only in the cookie.
type SessionResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	CSRFToken string    `json:"csrf_token,omitempty"`
}

// SessionStatusResponse is returned by the session probe endpoints.
type SessionStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role"`
	CSRFToken     string `json:"csrf_token,omitempty"`
}

// AdminLogin handles admin login
// @Summary Admin login
// @Accept json
// @Param request body AdminLoginRequest true "Login request"
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /admin/login [post]
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	session, err := h.service.LoginAdmin(r.Context(), req.Username, req.Password, h.requestMeta(r))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, models.RoleAdmin, session.Token, h.cookieConfig)
	h.writeSession(w, r, models.RoleAdmin, session)
}

// StaffLogin handles staff PIN login
// @Summary Staff login
// @Accept json
// @Param request body StaffLoginRequest true "Login request"
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /staff/login [post]
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req StaffLoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	session, err := h.service.LoginStaff(r.Context(), req.PIN, h.requestMeta(r))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, models.RoleStaff, session.Token, h.cookieConfig)
	h.writeSession(w, r, models.RoleStaff, session)
}

// AdminLogout clears the admin session cookie.
func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, models.RoleAdmin)
}

// StaffLogout clears the staff session cookie.
func (h *AuthHandler) StaffLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, models.RoleStaff)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request, role models.Role) {
	h.service.Logout(r.Context(), role, h.requestMeta(r))
	auth.ClearSessionCookie(w, role, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// ChangeAdminPassword rotates the admin password and re-issues the acting
// session at the bumped version so the caller stays logged in.
// @Router /admin/password [put]
func (h *AuthHandler) ChangeAdminPassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	session, err := h.service.ChangeSecret(r.Context(), models.RoleAdmin, req.CurrentPassword, req.NewPassword, h.requestMeta(r))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, models.RoleAdmin, session.Token, h.cookieConfig)
	h.writeSession(w, r, models.RoleAdmin, session)
}

// ChangeStaffPIN rotates the staff PIN. Admin-guarded: floor terminals
// never rotate their own PIN, so no staff cookie is re-issued here. The
// version bump logs every staff terminal out.
// @Router /admin/staff-pin [put]
func (h *AuthHandler) ChangeStaffPIN(w http.ResponseWriter, r *http.Request) {
	var req ChangePINRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_, err := h.service.ChangeSecret(r.Context(), models.RoleStaff, req.CurrentPIN, req.NewPIN, h.requestMeta(r))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeAdminSessions invalidates every outstanding admin session,
// including the caller's own.
// @Router /admin/sessions/revoke [post]
func (h *AuthHandler) RevokeAdminSessions(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, models.RoleAdmin)
	// The caller's token is now stale too.
	auth.ClearSessionCookie(w, models.RoleAdmin, h.cookieConfig)
}

// RevokeStaffSessions invalidates every outstanding staff session.
// @Router /admin/staff-sessions/revoke [post]
func (h *AuthHandler) RevokeStaffSessions(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, models.RoleStaff)
}

func (h *AuthHandler) revoke(w http.ResponseWriter, r *http.Request, role models.Role) {
	if err := h.service.RevokeAll(r.Context(), role, h.requestMeta(r)); err != nil {
		// Revocation failure must surface; a 200 here would report
		// compromised sessions as dead while they are still live.
		ref := pkghttp.WriteInternalError(w)
		h.logger.Error("revocation request failed",
			slog.String("role", string(role)),
			slog.String("request_ref", ref),
			slog.Any("error", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminSession is the admin session probe. It runs behind RequireSession,
// so reaching it at all means the cookie is valid.
func (h *AuthHandler) AdminSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStatus(w, models.RoleAdmin)
}

// StaffSession is the staff session probe.
func (h *AuthHandler) StaffSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStatus(w, models.RoleStaff)
}

func (h *AuthHandler) sessionStatus(w http.ResponseWriter, role models.Role) {
	resp := SessionStatusResponse{
		Authenticated: true,
		Role:          string(role),
	}
	if token, err := h.csrf.GenerateToken(role); err == nil {
		resp.CSRFToken = token
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *AuthHandler) requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{
		ClientIP:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, r *http.Request, role models.Role, session *services.Session) {
	resp := SessionResponse{ExpiresAt: session.ExpiresAt}
	if token, err := h.csrf.GenerateToken(role); err == nil {
		resp.CSRFToken = token
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// writeAuthError maps service errors to responses. Every credential
// failure collapses into the same generic 401.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *models.RateLimitedError

	switch {
	case errors.As(err, &limited):
		pkghttp.WriteTooManyRequests(w, int(limited.RetryAfter.Seconds()))
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, 0)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": "))
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		ref := pkghttp.WriteInternalError(w)
		h.logger.Error("auth request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_ref", ref),
			slog.Any("error", err))
	}
}
