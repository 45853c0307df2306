package models

import (
	"fmt"
	"time"
)

// Role identifies which credential record and session cookie a request
// belongs to. There are exactly two: the back-office admin and the
// floor-staff terminal.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// ParseRole validates a role string from external input.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStaff:
		return RoleStaff, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Credential is the single-row-per-role record backing authentication.
//
// SecretHash stores the salted scrypt digest in "<digestHex>.<saltHex>"
// form. SessionVersion starts at 1 and only ever increases; every session
// token embeds the version it was minted under, so bumping the counter
// invalidates all outstanding tokens for the role at once.
type Credential struct {
	Role           Role      `db:"role"`
	Username       *string   `db:"username"`
	SecretHash     string    `db:"secret_hash"`
	SessionVersion int64     `db:"session_version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
