// Package idp talks to the external identity provider: it builds
// authorization requests, redeems authorization codes, and fetches profile
// data as a normalized ExternalIdentity.
//
// Implementations return identity facts only and must not create users or
// issue session credentials.
package idp

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// Umbrella errors matching the callback's external error surface. The more
// specific sentinels below wrap into these, so callers can branch on either
// level with errors.Is.
var (
	// ErrCodeExchangeFailed covers every failure redeeming an authorization code.
	ErrCodeExchangeFailed = errors.New("code exchange failed")
	// ErrProfileFetchFailed covers every failure obtaining or verifying profile data.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
)

// Distinct failure causes. Never silently collapsed: logs carry the specific
// cause while the external surface sees only the umbrella error.
var (
	// ErrProviderUnreachable indicates a network-level failure or timeout.
	ErrProviderUnreachable = errors.New("identity provider unreachable")
	// ErrInvalidAuthCode indicates the provider rejected the code (invalid,
	// expired, or already redeemed).
	ErrInvalidAuthCode = errors.New("authorization code rejected")
	// ErrMalformedResponse indicates the provider answered with incomplete or
	// unverifiable data (missing id_token, bad signature, absent claims).
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ExternalIdentity is the normalized profile received from the provider for
// one login. It is transient and never persisted directly.
type ExternalIdentity struct {
	// ExternalID is the provider-issued opaque subject identifier.
	ExternalID string
	// Email is the user's email as asserted by the provider.
	Email string
	// Name is the display name, possibly empty.
	Name string
	// Organization is the user's organization, possibly empty.
	Organization string
}

// Provider is the contract for an external identity provider client.
type Provider interface {
	// AuthCodeURL composes the outbound authorization request carrying the
	// client id, scopes, redirect target, and the supplied state. Pure; no
	// network call.
	AuthCodeURL(state string) string

	// Exchange redeems an authorization code for provider tokens in a single
	// round trip. Failures unwrap to ErrCodeExchangeFailed and to one of the
	// distinct causes; partial data is never returned.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity verifies the provider tokens and maps the profile onto
	// an ExternalIdentity. Failures unwrap to ErrProfileFetchFailed.
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*ExternalIdentity, error)
}
