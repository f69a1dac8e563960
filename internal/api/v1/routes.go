package v1

import (
	"uplight/internal/api/v1/heartbeats"
	"uplight/internal/api/v1/incidents"

	"github.com/gin-gonic/gin"
)

// Engine is what the v1 routes need from the check engine.
type Engine interface {
	heartbeats.Recorder
	incidents.Updater
}

// SetupRoutes configures API routes.
func SetupRoutes(routerGroup *gin.RouterGroup, engine Engine) {
	heartbeatsHandler := heartbeats.NewHandler(engine)
	incidentsHandler := incidents.NewHandler(engine)

	heartbeatsGroup := routerGroup.Group("/heartbeats")
	{
		heartbeatsGroup.GET("/:slug/ping", heartbeatsHandler.Ping)
		heartbeatsGroup.POST("/:slug/ping", heartbeatsHandler.Ping)
	}

	incidentsGroup := routerGroup.Group("/incidents")
	{
		incidentsGroup.PATCH("/:id", incidentsHandler.UpdateStatus)
	}
}
