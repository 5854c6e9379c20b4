// Package service orchestrates the provider login flow: anti-forgery state,
// code exchange, profile fetch, directory provisioning, and credential issue.
package service

import (
	"context"
	"time"

	"siteguard/backend/internal/audit"
	"siteguard/backend/internal/csrf"
	"siteguard/backend/internal/idp"
	"siteguard/backend/internal/security"
	userdomain "siteguard/backend/internal/user/domain"
	usersvc "siteguard/backend/internal/user/service"
)

// UserDirectory is the minimal directory surface needed by the login service.
type UserDirectory interface {
	GetOrCreate(ctx context.Context, p usersvc.Profile) (*userdomain.User, bool, error)
}

// LoginStart is the outcome of InitiateLogin: where to send the user and the
// state that must come back on the callback.
type LoginStart struct {
	AuthorizationURL string
	State            string
}

// LoginResult is the outcome of a completed login.
type LoginResult struct {
	Credential string
	ExpiresAt  time.Time
	User       *userdomain.User
	Created    bool
}

// LoginService implements provider-backed login and logout.
type LoginService struct {
	states    csrf.StateStore
	provider  idp.Provider
	directory UserDirectory
	tokens    *security.TokenProvider
	auditor   audit.AuditLogger
}

// NewLoginService returns a LoginService with the given dependencies.
func NewLoginService(
	states csrf.StateStore,
	provider idp.Provider,
	directory UserDirectory,
	tokens *security.TokenProvider,
	auditor audit.AuditLogger,
) *LoginService {
	return &LoginService{
		states:    states,
		provider:  provider,
		directory: directory,
		tokens:    tokens,
		auditor:   auditor,
	}
}

// InitiateLogin issues a fresh anti-forgery state and composes the provider
// authorization URL carrying it.
func (s *LoginService) InitiateLogin(ctx context.Context) (*LoginStart, error) {
	state, err := s.states.Issue(ctx)
	if err != nil {
		return nil, err
	}
	return &LoginStart{
		AuthorizationURL: s.provider.AuthCodeURL(state),
		State:            state,
	}, nil
}

// CompleteLogin handles the provider callback. The state is consumed first
// and exactly once: a replayed or unknown state fails with
// csrf.ErrCSRFMismatch, and a consumed state is never restored when a later
// step fails, so the whole callback must be retried from InitiateLogin.
//
// On success the user is provisioned or refreshed in the directory and a
// signed session credential is issued. Each failure step propagates its
// package sentinel (csrf.ErrCSRFMismatch, idp.ErrCodeExchangeFailed,
// idp.ErrProfileFetchFailed) and no credential is ever issued.
func (s *LoginService) CompleteLogin(ctx context.Context, state, code string) (*LoginResult, error) {
	if err := s.states.Consume(ctx, state); err != nil {
		s.auditor.LogEvent(ctx, "", audit.ActionLoginFailed, "state validation failed")
		return nil, err
	}

	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.auditor.LogEvent(ctx, "", audit.ActionLoginFailed, "code exchange failed")
		return nil, err
	}

	ident, err := s.provider.FetchIdentity(ctx, token)
	if err != nil {
		s.auditor.LogEvent(ctx, "", audit.ActionLoginFailed, "profile fetch failed")
		return nil, err
	}

	user, created, err := s.directory.GetOrCreate(ctx, usersvc.Profile{
		ExternalID:   ident.ExternalID,
		Email:        ident.Email,
		Name:         ident.Name,
		Organization: ident.Organization,
	})
	if err != nil {
		s.auditor.LogEvent(ctx, "", audit.ActionLoginFailed, "directory provisioning failed")
		return nil, err
	}

	credential, expiresAt, err := s.tokens.Issue(user.ExternalID, user.Email, string(user.Role))
	if err != nil {
		s.auditor.LogEvent(ctx, user.ID, audit.ActionLoginFailed, "credential issue failed")
		return nil, err
	}

	s.auditor.LogEvent(ctx, user.ID, audit.ActionLoginSuccess, "provider login")
	return &LoginResult{
		Credential: credential,
		ExpiresAt:  expiresAt,
		User:       user,
		Created:    created,
	}, nil
}

// Logout records the end of a session. Credentials are stateless, so there is
// nothing to revoke server-side; the client discards the credential.
// userID may be empty when the request carried no valid credential.
func (s *LoginService) Logout(ctx context.Context, userID string) {
	s.auditor.LogEvent(ctx, userID, audit.ActionLogout, "")
}
