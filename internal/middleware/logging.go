package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"assac-admin-go/pkg/log"
)

// RequestLogger is a Gin middleware that records one structured log line per
// request. Bodies are never buffered here: the resumable upload endpoints
// stream multi-megabyte chunks, and copying them would double memory use.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if isUploadPath(c.Request.URL.Path) {
			fields = append(fields, "contentLength", c.Request.ContentLength)
		}
		log.Infow("HTTP Request Log", fields...)
	}
}

func isUploadPath(path string) bool {
	return strings.Contains(path, "/tiffuploads") || strings.Contains(path, "/shpuploads")
}
