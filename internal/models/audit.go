package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit action codes
const (
	AuditActionLoginOK         = "login-ok"
	AuditActionLoginFail       = "login-fail"
	AuditActionLoginLimited    = "login-rate-limited"
	AuditActionLogout          = "logout"
	AuditActionPasswordChanged = "password-changed"
	AuditActionPinChanged      = "pin-changed"
	AuditActionSessionsRevoked = "sessions-revoked"
)

// maxUserAgentLen caps the stored user-agent string.
const maxUserAgentLen = 256

// AuditEntry is an append-only record of a security-relevant action.
// Entries are never mutated or deleted by request paths; a retention
// sweep may prune aged rows.
type AuditEntry struct {
	ID        uuid.UUID     `db:"id"`
	ActorRole Role          `db:"actor_role"`
	ActorID   *string       `db:"actor_id"`
	IPAddress string        `db:"ip_address"`
	UserAgent string        `db:"user_agent"`
	Action    string        `db:"action"`
	Metadata  AuditMetadata `db:"metadata"`
	CreatedAt time.Time     `db:"created_at"`
}

// TruncateUserAgent bounds a raw User-Agent header before storage.
func TruncateUserAgent(ua string) string {
	if len(ua) > maxUserAgentLen {
		return ua[:maxUserAgentLen]
	}
	return ua
}

// AuditMetadata holds additional context for audit entries, stored as JSONB.
type AuditMetadata map[string]interface{}

// sensitiveKeySubstrings is the denylist applied to metadata keys before
// the entry is persisted.
var sensitiveKeySubstrings = []string{
	"password", "pin", "secret", "token", "cookie", "authorization", "hash",
}

// Sanitized returns a copy with any denylisted key's value redacted.
func (am AuditMetadata) Sanitized() AuditMetadata {
	if am == nil {
		return nil
	}
	out := make(AuditMetadata, len(am))
	for key, val := range am {
		lower := strings.ToLower(key)
		redact := false
		for _, sub := range sensitiveKeySubstrings {
			if strings.Contains(lower, sub) {
				redact = true
				break
			}
		}
		if redact {
			out[key] = "[REDACTED]"
		} else {
			out[key] = val
		}
	}
	return out
}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}
