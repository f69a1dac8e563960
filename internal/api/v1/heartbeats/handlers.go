// Package heartbeats serves the ping URL that cron jobs call.
package heartbeats

import (
	"context"
	"net/http"
	"strings"
	"time"

	"uplight/internal/api/types"
	"uplight/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recorder stores heartbeat pings. *core.Engine implements it.
type Recorder interface {
	RecordHeartbeatPing(ctx context.Context, slug string) (*storage.Heartbeat, error)
}

type Handler struct {
	recorder Recorder
}

func NewHandler(recorder Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// PingResponse is returned to the pinging job.
type PingResponse struct {
	Slug       string                  `json:"slug"`
	Status     storage.HeartbeatStatus `json:"status"`
	LastPingAt *time.Time              `json:"last_ping_at"`
}

// Ping handles POST|GET /api/v1/heartbeats/:slug/ping
//
// Returns:
//   - 200 OK with the heartbeat's new state
//   - 404 Not Found for an unknown slug
func (h *Handler) Ping(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		c.JSON(http.StatusBadRequest, types.ValidationErrorResponse("slug is required"))
		return
	}

	hb, err := h.recorder.RecordHeartbeatPing(c.Request.Context(), slug)
	if err != nil {
		if storage.IsNotFound(err) {
			c.JSON(http.StatusNotFound, types.NotFoundErrorResponse("heartbeat"))
			return
		}
		log.Error().Str("slug", slug).Err(err).Msg("Failed to record heartbeat ping")
		c.JSON(http.StatusInternalServerError, types.InternalErrorResponse("failed to record ping"))
		return
	}

	c.JSON(http.StatusOK, types.SuccessResponse(PingResponse{
		Slug:       hb.Slug,
		Status:     hb.Status,
		LastPingAt: hb.LastPingAt,
	}))
}
