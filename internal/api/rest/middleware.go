// Package rest exposes the control-plane HTTP surface: starting and
// stopping Runs and reading their state, plus the request middleware.
// Services and workflows are registered in Go, not through this package.
package rest

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netloom/flowengine/internal/infrastructure/logger"
)

const (
	RequestIDHeader     = "X-Request-ID"
	ContextKeyRequestID = "request_id"
)

// LoggingMiddleware logs two structured lines per request, one before and
// one after, tagged with a request ID so the two lines can be correlated.
type LoggingMiddleware struct {
	logger *logger.Logger
}

func NewLoggingMiddleware(log *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: log}
}

func (m *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

		m.logger.Info("request started",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			m.logger.Error("request completed", args...)
		case status >= 400:
			m.logger.Warn("request completed", args...)
		default:
			m.logger.Info("request completed", args...)
		}
	}
}

// GetRequestID reads back the ID LoggingMiddleware assigned.
func GetRequestID(c *gin.Context) string {
	v, ok := c.Get(ContextKeyRequestID)
	if !ok {
		return ""
	}
	return v.(string)
}

// RecoveryMiddleware converts a panic into a 500 response instead of a
// crashed process, logging the stack trace for diagnosis.
type RecoveryMiddleware struct {
	logger *logger.Logger
}

func NewRecoveryMiddleware(log *logger.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: log}
}

func (m *RecoveryMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := GetRequestID(c)
				m.logger.Error("panic recovered",
					"request_id", requestID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"error", r,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      fmt.Sprintf("internal server error (request_id: %s)", requestID),
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}
