package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/docpipe/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// LoggerMiddleware injects a request-scoped logger into the request context and
// logs one line per completed request. A caller-supplied X-Request-ID is kept so
// traces can be joined across services.
//
// The :id route parameter is attached to the context as document_id, or as
// job_id under /jobs, so handler and service logs carry it without each
// handler setting it.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := c.Request.Context()
		if log != nil {
			ctx = log.WithContext(ctx)
		}
		ctx = logger.SetComponent(logger.SetRequestID(ctx, requestID), "api")
		if id := c.Param("id"); id != "" {
			if strings.Contains(c.FullPath(), "/jobs/:id") {
				ctx = logger.SetJobID(ctx, id)
			} else {
				ctx = logger.SetDocumentID(ctx, id)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)

		logger.CtxDebug(ctx, "Request started: method=%s, route=%s, client_ip=%s",
			c.Request.Method, route(c), c.ClientIP())

		c.Next()

		status := c.Writer.Status()
		entry := logger.With(logger.Fields{
			logger.FieldStatus: status,
			logger.FieldSize:   c.Writer.Size(),
		}).WithDuration(time.Since(start))

		// Signed download tokens travel in the query string; only the route is logged.
		switch {
		case status >= 500:
			entry.Error(ctx, "Request failed: method=%s, route=%s, errors=%s",
				c.Request.Method, route(c), c.Errors.String())
		case status >= 400:
			entry.Warn(ctx, "Request rejected: method=%s, route=%s", c.Request.Method, route(c))
		default:
			entry.Info(ctx, "Request completed: method=%s, route=%s", c.Request.Method, route(c))
		}
	}
}

func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
