// Package httpapi holds the error vocabulary and response helpers shared by
// the HTTP handlers.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/db"
)

// Stable machine-readable error codes carried in the "code" field.
const (
	CodeCSRFMismatch       = "csrf_mismatch"
	CodeCodeExchangeFailed = "code_exchange_failed"
	CodeProfileFetchFailed = "profile_fetch_failed"
	CodeMissingCredential  = "missing_credential"
	CodeTokenExpired       = "token_expired"
	CodeInvalidToken       = "invalid_token"
	CodeUnknownUser        = "unknown_user"
	CodeForbidden          = "forbidden"
	CodeInvalidRole        = "invalid_role"
	CodeNotFound           = "not_found"
	CodePoolExhausted      = "pool_exhausted"
	CodeStorageUnavailable = "storage_unavailable"
	CodeInternal           = "internal"
)

// RetryAfterSeconds is the backoff hint sent with pool-exhaustion responses.
const RetryAfterSeconds = 1

// Error writes a JSON error body with a stable code.
func Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// StorageError maps connection-pool failures onto HTTP and reports whether it
// handled err. Pool exhaustion is overload, not fault: 503 with a Retry-After
// hint. An unhealthy backend is also 503. Anything else is left to the caller.
func StorageError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, db.ErrPoolExhausted):
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		Error(c, http.StatusServiceUnavailable, CodePoolExhausted, "storage busy, retry shortly")
		return true
	case errors.Is(err, db.ErrConnectionUnhealthy):
		Error(c, http.StatusServiceUnavailable, CodeStorageUnavailable, "storage unavailable")
		return true
	}
	return false
}

// Internal writes a generic 500 without leaking the cause.
func Internal(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "internal error")
}
