// Package router provides scholar service routing.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/internal/scholar/handler"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/response"
)

// Register registers the scholar service routes. metricsHandler 为空时不暴露 /metrics。
func Register(engine *gin.Engine, taskHandler *handler.TaskHandler, metricsHandler http.Handler) {
	logger.Info("Registering scholar routes...")

	engine.GET("/health", taskHandler.Health)
	if metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := engine.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", taskHandler.List)
			tasks.POST("/:kind", taskHandler.Run)
			tasks.POST("/:kind/file", taskHandler.RunFile)
		}
	}

	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, errors.ErrRouteNotFound.WithMessagef("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	})

	logger.Info("HTTP routes registered")
}
