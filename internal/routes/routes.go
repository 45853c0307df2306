package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/handlers"
	"github.com/forkline/forkline-auth/internal/middleware"
	"github.com/forkline/forkline-auth/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	auditHandler *handlers.AuditHandler,
	validator *auth.SessionValidator,
	csrfManager *auth.CSRFTokenManager,
	logger *slog.Logger,
) {
	// In-process burst limit on the login endpoints; the persistent
	// limiter behind the service enforces the real lockout policy.
	burstLimit := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(burstLimit)).Post("/admin/login", authHandler.AdminLogin)
	router.With(middleware.RateLimitByIP(burstLimit)).Post("/staff/login", authHandler.StaffLogin)

	// Admin-guarded routes
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(validator, models.RoleAdmin))

		r.Get("/admin/session", authHandler.AdminSession)
		r.Get("/admin/audit", auditHandler.ListRecent)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRFProtection(csrfManager, models.RoleAdmin, logger))

			r.Post("/admin/logout", authHandler.AdminLogout)
			r.Put("/admin/password", authHandler.ChangeAdminPassword)
			r.Put("/admin/staff-pin", authHandler.ChangeStaffPIN)
			r.Post("/admin/sessions/revoke", authHandler.RevokeAdminSessions)
			r.Post("/admin/staff-sessions/revoke", authHandler.RevokeStaffSessions)
		})
	})

	// Staff-guarded routes
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(validator, models.RoleStaff))

		r.Get("/staff/session", authHandler.StaffSession)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRFProtection(csrfManager, models.RoleStaff, logger))

			r.Post("/staff/logout", authHandler.StaffLogout)
		})
	})
}
