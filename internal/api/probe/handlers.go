// Package probe serves check requests for a regional node. The central
// dispatcher posts a request here and expects the bare result back; any
// failure is answered with a non-2xx status and {"error": "..."}.
package probe

import (
	"fmt"
	"net/http"

	"uplight/internal/checks"
	"uplight/internal/executor"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	executor executor.Executor
}

func NewHandler(exec executor.Executor) *Handler {
	return &Handler{executor: exec}
}

// Check handles POST /internal/v1/check
func (h *Handler) Check(c *gin.Context) {
	var req checks.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid check request: %v", err)})
		return
	}
	if req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
		return
	}

	result, err := h.executor.Execute(c.Request.Context(), req)
	if err != nil {
		log.Error().Int64("monitor_id", req.MonitorID).Str("location", req.Location).Err(err).Msg("Check request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
