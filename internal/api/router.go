// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge/internal/di"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/services"
	"github.com/reelforge/reelforge/internal/stitcher"
)

// SetupRouter wires the HTTP surface over the services in the container.
// Services must already be initialized; the router never creates them.
func SetupRouter() (*gin.Engine, error) {
	container := di.GetContainer()

	pipeline, ok := container.Get("pipeline").(*services.PipelineService)
	if !ok {
		return nil, fmt.Errorf("pipeline service not initialized")
	}

	progress, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("progress service not initialized")
	}

	client, ok := container.Get("gemini").(*gemini.Client)
	if !ok {
		return nil, fmt.Errorf("gemini client not initialized")
	}

	stitchService, ok := container.Get("stitchService").(*stitcher.Service)
	if !ok {
		return nil, fmt.Errorf("stitch service not initialized")
	}

	handler := NewHandler(pipeline, progress, client)

	router := gin.Default()
	router.Use(CORSMiddleware())
	router.Use(RequestLogMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/runs", handler.StartRun)
		apiGroup.GET("/runs/:id", handler.GetRun)
		apiGroup.GET("/models", handler.ListModels)
	}

	router.GET("/ws/runs/:id", handler.RunProgressWS)

	// clip upload, concat and download live on the same server
	stitchService.RegisterRoutes(router)

	return router, nil
}
