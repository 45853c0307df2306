package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/background"
	"github.com/forkline/forkline-auth/internal/config"
	"github.com/forkline/forkline-auth/internal/database"
	"github.com/forkline/forkline-auth/internal/handlers"
	middlewareCustom "github.com/forkline/forkline-auth/internal/middleware"
	"github.com/forkline/forkline-auth/internal/repositories"
	"github.com/forkline/forkline-auth/internal/routes"
	"github.com/forkline/forkline-auth/internal/services"
	pkghttp "github.com/forkline/forkline-auth/pkg/http"
	pkglogger "github.com/forkline/forkline-auth/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_backend", cfg.RateLimit.Backend))

	// Initialize database and run migrations
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	credentialRepo := repositories.NewCredentialRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Rate limiter backend: Postgres rows by default, Redis when configured
	var limiterStore services.RateLimitStore
	var limiterPruner background.RateLimitPruner
	switch cfg.RateLimit.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		pingCancel()
		defer redisClient.Close()
		limiterStore = repositories.NewRedisRateLimiter(redisClient)
	default:
		rateLimitRepo := repositories.NewRateLimitRepository(db)
		limiterStore = rateLimitRepo
		limiterPruner = rateLimitRepo
	}

	// Initialize services
	rateLimitService := services.NewRateLimitService(limiterStore, services.RateLimitConfig{
		MaxAttempts:     cfg.RateLimit.MaxAttempts,
		Window:          cfg.RateLimit.Window,
		LockoutDuration: cfg.RateLimit.LockoutDuration,
		FailOpen:        cfg.RateLimit.FailOpen,
	}, logger)

	auditService := services.NewAuditService(auditRepo, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   200,
		RandomDelayMs: 100,
	})

	authService := services.NewAuthService(
		credentialRepo,
		rateLimitService,
		auditService,
		timingDelay,
		cfg.Auth.ServerSecret,
		cfg.Auth.SessionTTL,
		logger,
	)

	// Bootstrap credentials on first start if configured
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authService.SeedCredentials(seedCtx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, cfg.Auth.StaffPIN); err != nil {
		logger.Error("failed to seed credentials",
			pkglogger.RedactedAttr("admin_username", cfg.Auth.AdminUsername, cfg.Server.Env),
			slog.Any("error", err))
	}
	seedCancel()

	// Session validation for protected routes
	sessionValidator := auth.NewSessionValidator(cfg.Auth.ServerSecret, credentialRepo)
	csrfManager := auth.NewCSRFTokenManager()

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Secure:     cfg.Server.Env == "production",
		SessionTTL: cfg.Auth.SessionTTL,
	}
	authHandler := handlers.NewAuthHandler(authService, csrfManager, cookieConfig, ipConfig, logger)
	auditHandler := handlers.NewAuditHandler(auditRepo, logger)

	// Cleanup manager prunes stale limiter rows and aged audit entries
	cleanupManager := background.NewCleanupManager(
		limiterPruner,
		auditRepo,
		logger,
		cfg.Auth.CleanupInterval,
		cfg.Auth.AuditRetention,
	)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	// No RealIP middleware: it would rewrite RemoteAddr from
	// client-supplied headers before the trusted-proxy check in
	// pkghttp.ExtractClientIP runs, letting a direct client pick its
	// own limiter key.
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, auditHandler, sessionValidator, csrfManager, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
