// internal/api/middleware.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge/internal/utils"
)

// CORSMiddleware allows the editor UI to call the API from another origin.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Credential")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogMiddleware logs one line per request through the shared logger
// and feeds the request metrics.
func RequestLogMiddleware() gin.HandlerFunc {
	logger := utils.GetLogger()
	metrics := utils.NewPipelineMetrics()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), elapsed)
		logger.Debugf("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), elapsed)
	}
}
