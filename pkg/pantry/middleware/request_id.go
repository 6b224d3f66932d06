// Package middleware provides gin middleware for request ids, access logging
// and panic recovery.
package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the HTTP header for request ID.
const RequestIDHeader = "X-Request-ID"

const (
	contextKeyRequestID = "request_id"
	contextKeyLogger    = "logger"
)

// RequestID injects a unique request ID into each request.
// An incoming X-Request-ID header is reused, otherwise a UUID is generated.
// A logger carrying the id is stored for handlers (see LoggerFrom).
func RequestID(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}

		c.Set(contextKeyRequestID, requestID)
		c.Set(contextKeyLogger, logger.With(slog.String("request_id", requestID)))
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

// LoggerFrom returns the request-scoped logger, or slog.Default when the
// RequestID middleware is not installed.
func LoggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(contextKeyLogger); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}
