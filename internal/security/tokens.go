// Package security issues and validates signed session credentials.
//
// Credentials are stateless: all identity facts live in the signed claim set
// and nothing is stored server-side. A credential is valid for its full
// lifetime once issued; there is no revocation.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a credential is malformed, tampered
	// with, or signed with an unexpected algorithm or key. Terminal; the
	// client must re-authenticate.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a credential carries a valid signature
	// but its expiry has elapsed. Distinguished from ErrInvalidToken so
	// callers can prompt re-authentication instead of rejecting outright.
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims is the claim set carried by a session credential.
// Subject holds the user's external (provider-issued) id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

var hmacMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// TokenProvider issues and validates HMAC-signed session credentials.
// Validation is pure computation and performs no I/O.
type TokenProvider struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	ttl    time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given secret and
// HMAC algorithm ("HS256", "HS384", or "HS512"). ttl is the credential
// lifetime; expires_at = issued_at + ttl.
func NewTokenProvider(secret []byte, alg, issuer string, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, errors.New("security: signing secret must not be empty")
	}
	method, ok := hmacMethods[alg]
	if !ok {
		return nil, fmt.Errorf("security: unsupported signing algorithm %q", alg)
	}
	if ttl <= 0 {
		return nil, errors.New("security: token ttl must be positive")
	}
	return &TokenProvider{secret: secret, method: method, issuer: issuer, ttl: ttl}, nil
}

// TTL returns the configured credential lifetime.
func (p *TokenProvider) TTL() time.Duration {
	return p.ttl
}

// Issue signs a claim set for the given identity and role.
// Returns the opaque credential and its expiry.
func (p *TokenProvider) Issue(externalID, email, role string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   externalID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Role:  role,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate verifies the credential's signature and expiry and returns its
// claims. Fails ErrTokenExpired for a well-signed but elapsed credential and
// ErrInvalidToken for everything else, including algorithm substitution.
func (p *TokenProvider) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{},
		func(t *jwt.Token) (interface{}, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
