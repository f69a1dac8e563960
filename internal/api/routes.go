package api

import (
	"net/http"

	"uplight/internal/api/probe"
	"uplight/internal/api/types"
	"uplight/internal/executor"

	v1 "uplight/internal/api/v1"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	baseHandler := NewHandler(s.deps.Engine, s.deps.Store, s.deps.Breakers)

	apiGroup := s.router.Group("/api")
	apiGroup.GET("/ping", baseHandler.Ping)
	apiGroup.GET("/health", baseHandler.Health)

	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if s.deps.Engine != nil {
		v1.SetupRoutes(apiGroup.Group("/v1"), s.deps.Engine)
	}

	// Regional node endpoint, called by the central dispatcher.
	if s.deps.Local != nil {
		probeHandler := probe.NewHandler(s.deps.Local)
		s.router.POST(executor.CheckPath, probeHandler.Check)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, types.NotFoundErrorResponse("route"))
	})
}
