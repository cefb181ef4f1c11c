// Package api exposes the solve orchestrator over HTTP for UI clients.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/piwi3910/SheetNest/internal/solver"
)

// SetupRouter sets up the API routes.
func SetupRouter(orch *solver.Orchestrator, logger hclog.Logger) *gin.Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	handler := NewHandler(orch, logger)

	api := router.Group("/api/v1")
	{
		api.GET("/health", handler.Health)

		api.POST("/solves", handler.CreateSolve)
		api.GET("/solves", handler.ListSolves)
		api.GET("/solves/:id", handler.GetSolve)
		api.DELETE("/solves/:id", handler.CancelSolve)
	}

	return router
}

// requestLogger logs every request with its status and latency.
func requestLogger(logger hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
