//go:build devauth

package config

import "os"

// devFallbackSecret allows a local-only signing secret via DEV_SESSION_SECRET.
// Only honored in development builds tagged devauth; production environments
// still refuse it.
func devFallbackSecret(env string) string {
	if env == "production" {
		return ""
	}
	return os.Getenv("DEV_SESSION_SECRET")
}
