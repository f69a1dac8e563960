package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint; main overrides it at start-up.
var Version = "dev"

// Handler manages public endpoints.
//
// It provides system-level information suitable for health checks,
// liveness probes and basic diagnostics.
type Handler struct {
	engine    Engine
	store     Pinger
	breakers  BreakerReporter
	startTime time.Time
}

// NewHandler initializes a new public API handler.
//
// Parameters:
//   - engine: Check engine (may be nil on a probe-only node)
//   - store: Database reachability (may be nil on a probe-only node)
//   - breakers: Per-region breaker states (may be nil)
//
// Returns a fully initialized handler ready for HTTP routing.
func NewHandler(engine Engine, store Pinger, breakers BreakerReporter) *Handler {
	return &Handler{
		engine:    engine,
		store:     store,
		breakers:  breakers,
		startTime: time.Now(),
	}
}

// Ping handles GET /api/ping
//
// Response:
//   - 200 OK with {"message": "pong"}
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Health handles GET /api/health
//
// Overall status is "healthy" only if every configured component is; a
// missing component is reported as "disabled" and does not count.
//
// Response:
//   - 200 OK with a per-component health report
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus, dbResponseTime := h.checkDatabaseHealth(ctx)
	engineStatus, engineDetails := h.checkEngineHealth()

	overallStatus := "healthy"
	if dbStatus == "unhealthy" || engineStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	components := gin.H{
		"database": gin.H{
			"status":           dbStatus,
			"response_time_ms": dbResponseTime,
		},
		"engine": engineDetails,
	}
	if h.breakers != nil {
		components["regions"] = h.breakers.BreakerStates()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     overallStatus,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).String(),
		"version":    Version,
		"components": components,
	})
}

// checkDatabaseHealth pings the database and measures the round trip.
func (h *Handler) checkDatabaseHealth(ctx context.Context) (string, int64) {
	if h.store == nil {
		return "disabled", 0
	}

	start := time.Now()
	err := h.store.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()
	if err != nil {
		return "unhealthy", responseTime
	}

	return "healthy", responseTime
}

func (h *Handler) checkEngineHealth() (string, gin.H) {
	if h.engine == nil {
		return "disabled", gin.H{"status": "disabled"}
	}

	st := h.engine.Status()
	status := "healthy"
	if !st.Running {
		status = "unhealthy"
	}

	details := gin.H{
		"status": status,
		"jobs":   st.Jobs,
	}
	if len(st.Skipped) > 0 {
		details["skipped_ticks"] = st.Skipped
	}
	return status, details
}
