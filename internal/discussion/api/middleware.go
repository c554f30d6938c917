package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/logger"
)

// RequestLogger logs every request with its request id, status, and latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info("request completed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID))
	}
}

// Recovery recovers from panics inside a handler and responds with a
// generic 500 rather than crashing the process.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method))
				c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
					Success: false,
					Error:   "an internal server error occurred",
				})
			}
		}()
		c.Next()
	}
}

// CORS adds permissive CORS headers; the transport is expected to sit
// behind a trusted reverse proxy that narrows origins in production.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// BearerAuth extracts the Authorization: Bearer <userId> credential and
// stores it as "user_id" in the request context. Token verification itself
// is delegated to whatever identity provider fronts this service; this
// middleware only establishes the convention the handlers read from.
func BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{
				Success: false,
				Error:   "missing or malformed Authorization header",
			})
			return
		}
		c.Set("user_id", token)
		c.Next()
	}
}

// RateLimit applies a simple token-bucket limit per process; a production
// deployment with multiple replicas would back this with a shared store.
func RateLimit(requestsPerSecond int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		tokens   = float64(requestsPerSecond)
		lastTime = time.Now()
	)

	return func(c *gin.Context) {
		mu.Lock()
		now := time.Now()
		tokens += now.Sub(lastTime).Seconds() * float64(requestsPerSecond)
		if tokens > float64(requestsPerSecond) {
			tokens = float64(requestsPerSecond)
		}
		lastTime = now

		if tokens < 1 {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{
				Success: false,
				Error:   "too many requests, please try again later",
			})
			return
		}
		tokens--
		mu.Unlock()
		c.Next()
	}
}
