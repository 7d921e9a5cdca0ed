package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an id, reusing a caller supplied one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request once it has been served. Bodies are not
// logged: package uploads are large and RTE calls carry learner data.
func RequestLogger(log hclog.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		args := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"size", c.Writer.Size(),
		}
		if id, ok := c.Get("request_id"); ok {
			args = append(args, "request_id", id)
		}

		// RTE calls are chatty; keep them at trace
		if strings.Contains(c.Request.URL.Path, "/rte/") {
			log.Trace("request served", args...)
			return
		}
		log.Debug("request served", args...)
	}
}

// ErrorLogger logs errors attached to the gin context
func ErrorLogger(log hclog.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		c.Next()

		for _, err := range c.Errors {
			log.Error("request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error(),
				"type", err.Type,
			)
		}
	}
}
