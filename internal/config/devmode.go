//go:build !devauth

package config

// devFallbackSecret is compiled out of normal builds: without the devauth
// build tag there is no fallback path at all, and a missing SESSION_SECRET
// is a startup error regardless of environment.
func devFallbackSecret(env string) string {
	return ""
}
