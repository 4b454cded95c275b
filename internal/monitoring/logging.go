package monitoring

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// RequestID returns the id assigned to the request by AccessLogMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLogMiddleware assigns every request an id (reusing a caller supplied
// X-Request-Id) and logs the matched route, status and latency once the
// handler returns. Requests for skipPaths get an id but are not logged.
func AccessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []any{
			"request_id", id,
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// AdminAuditMiddleware records every admin call with the operator's reason,
// taken from ?reason= or the X-Admin-Reason header.
func AdminAuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reason := c.Query("reason")
		if reason == "" {
			reason = c.GetHeader("X-Admin-Reason")
		}
		c.Next()
		log.Info("Admin audit",
			"request_id", RequestID(c),
			"action", c.Request.Method+" "+c.FullPath(),
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"reason", reason,
		)
	}
}
