package security

import "time"

// NewTestTokenProvider returns a TokenProvider with a fixed secret and a short
// TTL for use in tests across packages.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTokenProvider([]byte("test-signing-secret-0123456789ab"), "HS256", "siteguard-auth", 15*time.Minute)
}
