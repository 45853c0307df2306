package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forkline/forkline-auth/internal/models"
	"github.com/forkline/forkline-auth/internal/services"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks status code and decodes the JSON body into out.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, out interface{}) {
	t.Helper()

	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}
}

// MockAuthService is a configurable AuthServiceInterface implementation.
type MockAuthService struct {
	LoginAdminFunc   func(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error)
	LoginStaffFunc   func(ctx context.Context, pin string, meta services.RequestMeta) (*services.Session, error)
	LogoutFunc       func(ctx context.Context, role models.Role, meta services.RequestMeta)
	ChangeSecretFunc func(ctx context.Context, role models.Role, currentSecret, newSecret string, meta services.RequestMeta) (*services.Session, error)
	RevokeAllFunc    func(ctx context.Context, role models.Role, meta services.RequestMeta) error
}

func (m *MockAuthService) LoginAdmin(ctx context.Context, username, password string, meta services.RequestMeta) (*services.Session, error) {
	if m.LoginAdminFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginAdminFunc(ctx, username, password, meta)
}

func (m *MockAuthService) LoginStaff(ctx context.Context, pin string, meta services.RequestMeta) (*services.Session, error) {
	if m.LoginStaffFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginStaffFunc(ctx, pin, meta)
}

func (m *MockAuthService) Logout(ctx context.Context, role models.Role, meta services.RequestMeta) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, role, meta)
	}
}

func (m *MockAuthService) ChangeSecret(ctx context.Context, role models.Role, currentSecret, newSecret string, meta services.RequestMeta) (*services.Session, error) {
	if m.ChangeSecretFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.ChangeSecretFunc(ctx, role, currentSecret, newSecret, meta)
}

func (m *MockAuthService) RevokeAll(ctx context.Context, role models.Role, meta services.RequestMeta) error {
	if m.RevokeAllFunc == nil {
		return nil
	}
	return m.RevokeAllFunc(ctx, role, meta)
}
