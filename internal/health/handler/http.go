// Package handler exposes readiness over HTTP, including connection-pool
// saturation so operators can see exhaustion building before it bites.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/db"
)

const pingTimeout = 2 * time.Second

// Pinger is the storage surface the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() db.Stats
}

// HTTP serves /health.
type HTTP struct {
	pool Pinger
}

// NewHTTP returns the health HTTP handler.
func NewHTTP(pool Pinger) *HTTP {
	return &HTTP{pool: pool}
}

// Health reports service and database health plus live pool counters.
// A failing database ping degrades the response to 503 but still includes
// the counters, which are exactly what an operator needs at that moment.
func (h *HTTP) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := http.StatusOK
	statusText := "ok"
	healthy := true
	if err := h.pool.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
		healthy = false
	}

	stats := h.pool.Stats()
	c.JSON(status, gin.H{
		"status": statusText,
		"database": gin.H{
			"healthy": healthy,
			"pool": gin.H{
				"size":         stats.PoolSize,
				"max_overflow": stats.MaxOverflow,
				"idle":         stats.Idle,
				"leased":       stats.Leased,
				"overflow":     stats.Overflow,
			},
		},
	})
}
