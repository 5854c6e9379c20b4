package idp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const microsoftIssuerFormat = "https://login.microsoftonline.com/%s/v2.0"

// requestTimeout bounds each provider round trip so a wedged token or
// UserInfo endpoint fails the login instead of holding the callback open.
const requestTimeout = 10 * time.Second

// MicrosoftProvider implements Provider against a Microsoft Entra ID tenant
// using OIDC discovery. Signing keys are fetched lazily from the discovered
// JWKS endpoint and cached by the verifier.
type MicrosoftProvider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	provider *oidc.Provider
	timeout  time.Duration
}

// NewMicrosoftProvider runs OIDC discovery for the tenant and returns a ready
// provider client. Discovery failure is returned immediately so the process
// fails fast at startup rather than on the first login.
func NewMicrosoftProvider(ctx context.Context, tenantID, clientID, clientSecret, redirectURL string) (*MicrosoftProvider, error) {
	if tenantID == "" || clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("idp: tenant id, client id, client secret, and redirect url are all required")
	}

	issuer := fmt.Sprintf(microsoftIssuerFormat, tenantID)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("idp: oidc discovery for %s: %w", issuer, err)
	}

	return &MicrosoftProvider{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		provider: provider,
		timeout:  requestTimeout,
	}, nil
}

// withDeadline caps ctx at the provider timeout. The caller's own deadline
// still applies when it is shorter.
func (p *MicrosoftProvider) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	t := p.timeout
	if t <= 0 {
		t = requestTimeout
	}
	return context.WithTimeout(ctx, t)
}

// AuthCodeURL composes the tenant authorization URL carrying the given state.
func (p *MicrosoftProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange redeems the authorization code at the tenant token endpoint. The
// response must carry an id_token; a token response without one is malformed.
func (p *MicrosoftProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeExchangeFailed, classifyExchangeErr(err))
	}
	if _, ok := token.Extra("id_token").(string); !ok {
		return nil, fmt.Errorf("%w: %w: token response has no id_token", ErrCodeExchangeFailed, ErrMalformedResponse)
	}
	return token, nil
}

type idTokenClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Organization      string `json:"organization"`
}

// FetchIdentity verifies the id_token signature against the tenant's published
// keys, then fetches the UserInfo endpoint for profile fields. Claims are
// never trusted before signature verification succeeds; the verified subject
// is authoritative and a UserInfo subject mismatch is malformed.
func (p *MicrosoftProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*ExternalIdentity, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: %w: token has no id_token", ErrProfileFetchFailed, ErrMalformedResponse)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: id_token verification: %w", ErrProfileFetchFailed, classifyFetchErr(err), err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w: decoding claims: %w", ErrProfileFetchFailed, ErrMalformedResponse, err)
	}

	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: userinfo: %w", ErrProfileFetchFailed, classifyFetchErr(err), err)
	}
	if info.Subject != "" && info.Subject != idToken.Subject {
		return nil, fmt.Errorf("%w: %w: userinfo subject mismatch", ErrProfileFetchFailed, ErrMalformedResponse)
	}
	var profile idTokenClaims
	if err := info.Claims(&profile); err != nil {
		return nil, fmt.Errorf("%w: %w: decoding userinfo: %w", ErrProfileFetchFailed, ErrMalformedResponse, err)
	}
	mergeClaims(&claims, &profile, info.Email)

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	if idToken.Subject == "" || email == "" {
		return nil, fmt.Errorf("%w: %w: missing subject or email claim", ErrProfileFetchFailed, ErrMalformedResponse)
	}

	return &ExternalIdentity{
		ExternalID:   idToken.Subject,
		Email:        email,
		Name:         claims.Name,
		Organization: claims.Organization,
	}, nil
}

// mergeClaims fills gaps in the id_token claims with UserInfo values, which
// carry the fuller profile on tenants that keep id_tokens minimal.
func mergeClaims(dst, src *idTokenClaims, infoEmail string) {
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Email == "" {
		dst.Email = infoEmail
	}
	if dst.PreferredUsername == "" {
		dst.PreferredUsername = src.PreferredUsername
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Organization == "" {
		dst.Organization = src.Organization
	}
}

// classifyExchangeErr maps a token-endpoint failure to a distinct cause. An
// HTTP-level error response means the provider rejected the code; anything
// else is a transport failure.
func classifyExchangeErr(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %w", ErrInvalidAuthCode, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
}

// classifyFetchErr distinguishes a network failure reaching the JWKS endpoint
// from a response that verified wrong.
func classifyFetchErr(err error) error {
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrProviderUnreachable
	}
	return ErrMalformedResponse
}
