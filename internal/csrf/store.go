// Package csrf issues and consumes one-time state tokens that bind a login
// attempt to its callback.
//
// A token is accepted by Consume at most once: replay, expiry, and unknown
// tokens all fail with ErrCSRFMismatch. The store is an explicit interface so
// a single-instance deployment can run the in-process MemoryStore while a
// multi-instance deployment backs it with Redis, without the login flow
// knowing the difference.
package csrf

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrCSRFMismatch is returned when a state token is unknown, expired, or
// already consumed.
var ErrCSRFMismatch = errors.New("csrf state mismatch")

// StateStore issues and single-use-consumes anti-forgery state tokens.
type StateStore interface {
	// Issue generates a high-entropy token and records it with the store's TTL.
	Issue(ctx context.Context) (string, error)
	// Consume atomically checks that the token exists, is unconsumed, and is
	// unexpired, and marks it consumed in the same step. Fails ErrCSRFMismatch
	// otherwise; a given token succeeds at most once.
	Consume(ctx context.Context, token string) error
}

// generateToken returns 32 bytes (256 bits) of entropy, URL-safe encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DefaultTTL is the state lifetime when none is configured.
const DefaultTTL = 10 * time.Minute
