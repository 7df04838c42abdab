package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sadopc/veresia/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestLogger tags each request with an id and puts a logger carrying it
// into the request context.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		ctxLogger := s.log.With("requestID", requestID)
		c.Request = c.Request.WithContext(logger.ToContext(c.Request.Context(), ctxLogger))

		start := time.Now()
		c.Next()

		ctxLogger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			logger.FromContext(c.Request.Context()).Warn("Rate limit exceeded", "path", c.Request.URL.Path)
			abortJSON(c, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
