package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forkline/forkline-auth/internal/models"
)

// tokenFormatTag versions the wire format. Only the current format is
// accepted; tokens carrying any other tag are invalid.
const tokenFormatTag = "v2"

// ParsedToken is the result of parsing a session token. Callers must treat
// SessionVersion and ExpiresAt as meaningless unless Valid is true.
type ParsedToken struct {
	Valid          bool
	SessionVersion int64
	ExpiresAt      time.Time
}

// Mint builds a signed session token: "v2:<sessionVersion>:<expiryUnix>:<sigHex>".
// The signature is HMAC-SHA256 over the first three fields keyed by the
// server secret. An empty secret is a hard error: the system never issues
// an unsigned token.
func Mint(sessionVersion int64, ttl time.Duration, serverSecret string) (string, error) {
	if serverSecret == "" {
		return "", models.ErrMissingSecret
	}
	if sessionVersion < 1 {
		return "", fmt.Errorf("invalid session version %d", sessionVersion)
	}

	expiry := time.Now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s:%d:%d", tokenFormatTag, sessionVersion, expiry)

	return payload + ":" + sign(payload, serverSecret), nil
}

// Parse verifies a token string. Malformed input never panics or returns
// an error; every failure mode collapses into Valid=false so callers issue
// a uniform unauthorized response.
func Parse(token, serverSecret string) ParsedToken {
	if serverSecret == "" {
		return ParsedToken{}
	}

	parts := strings.Split(token, ":")
	if len(parts) != 4 || parts[0] != tokenFormatTag {
		return ParsedToken{}
	}

	sessionVersion, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || sessionVersion < 1 {
		return ParsedToken{}
	}

	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ParsedToken{}
	}

	payload := strings.Join(parts[:3], ":")
	expected, err := hex.DecodeString(sign(payload, serverSecret))
	if err != nil {
		return ParsedToken{}
	}
	supplied, err := hex.DecodeString(parts[3])
	if err != nil {
		return ParsedToken{}
	}
	if !hmac.Equal(expected, supplied) {
		return ParsedToken{}
	}

	expiresAt := time.Unix(expiry, 0)
	if !time.Now().Before(expiresAt) {
		return ParsedToken{}
	}

	return ParsedToken{
		Valid:          true,
		SessionVersion: sessionVersion,
		ExpiresAt:      expiresAt,
	}
}

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
