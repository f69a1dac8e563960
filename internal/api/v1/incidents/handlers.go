// Package incidents implements the user-driven incident transitions.
//
// Opening and resolving incidents belongs to the check engine; this package
// only moves an open incident between active, acknowledged and fixing.
package incidents

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"uplight/internal/api/types"
	"uplight/internal/core"
	"uplight/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Updater applies incident status transitions. *core.Engine implements it.
type Updater interface {
	UpdateIncidentStatus(ctx context.Context, id int64, status storage.IncidentStatus) (*storage.Incident, error)
}

// Handler manages incident endpoints.
type Handler struct {
	updater Updater
}

// NewHandler creates a new incident handler instance.
func NewHandler(updater Updater) *Handler {
	return &Handler{updater: updater}
}

// UpdateStatus handles PATCH /api/v1/incidents/:id
//
// Acknowledged and fixing timestamps are stamped the first time the status
// is entered and never moved afterwards.
//
// Returns:
//   - 200 OK with the updated incident
//   - 400 Bad Request for a malformed id or status
//   - 404 Not Found for an unknown incident
//   - 409 Conflict when the incident is already resolved
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, types.ValidationErrorResponse("invalid incident id"))
		return
	}

	var req types.IncidentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ValidationErrorResponse(err.Error()))
		return
	}

	incident, err := h.updater.UpdateIncidentStatus(c.Request.Context(), id, storage.IncidentStatus(req.Status))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, types.SuccessResponse(incident))
	case storage.IsNotFound(err):
		c.JSON(http.StatusNotFound, types.NotFoundErrorResponse("incident"))
	case errors.Is(err, core.ErrInvalidIncidentStatus):
		c.JSON(http.StatusBadRequest, types.ValidationErrorResponse(err.Error()))
	case errors.Is(err, core.ErrIncidentResolved):
		c.JSON(http.StatusConflict, types.ConflictErrorResponse(err.Error()))
	default:
		log.Error().Int64("incident_id", id).Err(err).Msg("Failed to update incident status")
		c.JSON(http.StatusInternalServerError, types.InternalErrorResponse("failed to update incident"))
	}
}
