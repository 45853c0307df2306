package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. These are part of the stored-hash contract:
// changing any of them invalidates every stored hash and requires a
// migration, so hash and verify must always share them.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// HashSecret derives a salted scrypt digest of a password or PIN and
// encodes it as "<digestHex>.<saltHex>". A fresh random salt is generated
// per call and never reused.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	digest, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	return hex.EncodeToString(digest) + "." + hex.EncodeToString(salt), nil
}

// VerifySecret checks a supplied secret against a stored "<digestHex>.<saltHex>"
// hash. It fails closed on any malformed input and compares digests in
// constant time; it never reports why a check failed.
func VerifySecret(storedHash, supplied string) bool {
	digestHex, saltHex, ok := strings.Cut(storedHash, ".")
	if !ok || digestHex == "" || saltHex == "" {
		return false
	}

	storedDigest, err := hex.DecodeString(digestHex)
	if err != nil || len(storedDigest) != scryptKeyLen {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	digest, err := scrypt.Key([]byte(supplied), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(storedDigest, digest) == 1
}
