package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/forkline/forkline-auth/internal/auth"
	"github.com/forkline/forkline-auth/internal/database"
	"github.com/forkline/forkline-auth/internal/handlers"
	"github.com/forkline/forkline-auth/internal/repositories"
	"github.com/forkline/forkline-auth/internal/routes"
	"github.com/forkline/forkline-auth/internal/services"
	pkghttp "github.com/forkline/forkline-auth/pkg/http"
)

// TestServerSecret signs every token minted by the test stack.
const TestServerSecret = "integration-test-secret-32-chars!!"

// TestServer wraps httptest.Server with a real database behind it
type TestServer struct {
	Server      *httptest.Server
	DB          *database.DB
	AuthService *services.AuthService
	CSRFManager *auth.CSRFTokenManager
}

// NewTestServer initializes the complete HTTP stack over the given database.
// It mirrors the production wiring with test-friendly numbers: the Postgres
// limiter backend, zero timing delay, and short TTLs where it matters.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	credentialRepo := repositories.NewCredentialRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	rateLimitService := services.NewRateLimitService(rateLimitRepo, services.RateLimitConfig{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		LockoutDuration: 15 * time.Minute,
	}, logger)

	auditService := services.NewAuditService(auditRepo, logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	authService := services.NewAuthService(
		credentialRepo,
		rateLimitService,
		auditService,
		timingDelay,
		TestServerSecret,
		8*time.Hour,
		logger,
	)

	sessionValidator := auth.NewSessionValidator(TestServerSecret, credentialRepo)
	csrfManager := auth.NewCSRFTokenManager()

	authHandler := handlers.NewAuthHandler(
		authService,
		csrfManager,
		auth.CookieConfig{SessionTTL: 8 * time.Hour},
		&pkghttp.IPConfig{},
		logger,
	)
	auditHandler := handlers.NewAuditHandler(auditRepo, logger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	routes.RegisterRoutes(router, authHandler, auditHandler, sessionValidator, csrfManager, logger)

	return &TestServer{
		Server:      httptest.NewServer(router),
		DB:          db,
		AuthService: authService,
		CSRFManager: csrfManager,
	}
}

// Close shuts the test server down.
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// PostJSON sends a JSON POST with optional cookies and headers.
func (ts *TestServer) PostJSON(path string, body interface{}, cookies []*http.Cookie, headers map[string]string) (*http.Response, error) {
	return ts.doJSON(http.MethodPost, path, body, cookies, headers)
}

// PutJSON sends a JSON PUT with optional cookies and headers.
func (ts *TestServer) PutJSON(path string, body interface{}, cookies []*http.Cookie, headers map[string]string) (*http.Response, error) {
	return ts.doJSON(http.MethodPut, path, body, cookies, headers)
}

// Get sends a GET with optional cookies, asking for JSON.
func (ts *TestServer) Get(path string, cookies []*http.Cookie) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, ts.Server.URL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return ts.Server.Client().Do(req)
}

func (ts *TestServer) doJSON(method, path string, body interface{}, cookies []*http.Cookie, headers map[string]string) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return ts.Server.Client().Do(req)
}

// DecodeJSON reads and decodes a JSON response body, then closes it.
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %q: %w", string(data), err)
	}
	return nil
}

// SessionCookie pulls a named cookie out of a response, nil when absent.
func SessionCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
