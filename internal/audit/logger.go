// Package audit records security-relevant events (logins, role changes,
// logouts) to a persistent trail.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"siteguard/backend/internal/audit/domain"
	auditrepo "siteguard/backend/internal/audit/repository"
)

// Audited actions.
const (
	ActionLoginSuccess = "login_success"
	ActionLoginFailed  = "login_failed"
	ActionRoleChanged  = "role_changed"
	ActionLogout       = "logout"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. LogEvent is best-effort: failures
// are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, detail string)
}

// Logger implements AuditLogger using the audit repository and an optional IP
// extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for the client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit entry. Best-effort: errors are logged and not
// returned. userID may be empty for failed logins with no resolved user.
func (l *Logger) LogEvent(ctx context.Context, userID, action, detail string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		IP:        ip,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s: %v", action, err)
	}
}

// Nop is an AuditLogger that discards every event. Useful in tests.
type Nop struct{}

func (Nop) LogEvent(ctx context.Context, userID, action, detail string) {}
