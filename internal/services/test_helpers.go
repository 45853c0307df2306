package services

import (
	"context"
	"sync"
	"time"

	"github.com/forkline/forkline-auth/internal/models"
	"github.com/forkline/forkline-auth/internal/repositories"
)

// MemoryRateLimitStore mirrors the persistent stores' fixed-window state
// machine for testing. Production always uses a shared store.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	entries map[string]*models.RateLimitEntry
	FailErr error
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{entries: make(map[string]*models.RateLimitEntry)}
}

func (m *MemoryRateLimitStore) CheckAndIncrement(ctx context.Context, key string, policy repositories.RateLimitPolicy) (models.RateLimitDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailErr != nil {
		return models.RateLimitDecision{}, m.FailErr
	}

	now := time.Now()
	entry, ok := m.entries[key]
	if !ok {
		m.entries[key] = &models.RateLimitEntry{Key: key, AttemptCount: 1, WindowStartAt: now}
		return models.RateLimitDecision{Allowed: true}, nil
	}

	if entry.Locked(now) {
		return models.RateLimitDecision{Allowed: false, RetryAfter: entry.LockedUntil.Sub(now)}, nil
	}

	if entry.LockedUntil != nil || entry.WindowExpired(now, policy.Window) {
		m.entries[key] = &models.RateLimitEntry{Key: key, AttemptCount: 1, WindowStartAt: now}
		return models.RateLimitDecision{Allowed: true}, nil
	}

	entry.AttemptCount++
	if entry.AttemptCount > policy.MaxAttempts {
		lockedUntil := now.Add(policy.LockoutDuration)
		entry.LockedUntil = &lockedUntil
		return models.RateLimitDecision{Allowed: false, RetryAfter: policy.LockoutDuration}, nil
	}

	return models.RateLimitDecision{Allowed: true}, nil
}

func (m *MemoryRateLimitStore) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Entry exposes a key's current state for assertions.
func (m *MemoryRateLimitStore) Entry(key string) *models.RateLimitEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key]
}

// MemoryCredentialStore is an in-memory CredentialStore fake.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	creds   map[models.Role]*models.Credential
	FailErr error
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[models.Role]*models.Credential)}
}

func (m *MemoryCredentialStore) GetByRole(ctx context.Context, role models.Role) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return nil, m.FailErr
	}
	cred, ok := m.creds[role]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *cred
	return &c, nil
}

func (m *MemoryCredentialStore) CurrentSessionVersion(ctx context.Context, role models.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return 0, m.FailErr
	}
	cred, ok := m.creds[role]
	if !ok {
		return 0, models.ErrNotFound
	}
	return cred.SessionVersion, nil
}

func (m *MemoryCredentialStore) UpdateSecret(ctx context.Context, role models.Role, newHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return 0, m.FailErr
	}
	cred, ok := m.creds[role]
	if !ok {
		return 0, models.ErrNotFound
	}
	cred.SecretHash = newHash
	cred.SessionVersion++
	return cred.SessionVersion, nil
}

func (m *MemoryCredentialStore) BumpSessionVersion(ctx context.Context, role models.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return 0, m.FailErr
	}
	cred, ok := m.creds[role]
	if !ok {
		return 0, models.ErrNotFound
	}
	cred.SessionVersion++
	return cred.SessionVersion, nil
}

func (m *MemoryCredentialStore) Seed(ctx context.Context, role models.Role, username *string, secretHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return m.FailErr
	}
	if _, ok := m.creds[role]; ok {
		return nil
	}
	m.creds[role] = &models.Credential{
		Role:           role,
		Username:       username,
		SecretHash:     secretHash,
		SessionVersion: 1,
	}
	return nil
}

// MemoryAuditStore collects audit entries for assertions.
type MemoryAuditStore struct {
	mu      sync.Mutex
	Entries []*models.AuditEntry
	FailErr error
}

func (m *MemoryAuditStore) Insert(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return m.FailErr
	}
	m.Entries = append(m.Entries, entry)
	return nil
}

// Actions returns the recorded action codes in order.
func (m *MemoryAuditStore) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Action)
	}
	return out
}
